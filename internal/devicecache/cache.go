// Package devicecache keeps each device's last known position in Redis so
// latest-position lookups do not hit the telemetry table.
package devicecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// ErrNotCached is returned when a device has no cached position.
var ErrNotCached = errors.New("no cached position for device")

const keyPrefix = "fleetwatch:latest:"

// Cache stores the newest report per device with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// SetLatest stores the report as the device's last known position unless
// a newer report is already cached.
func (c *Cache) SetLatest(ctx context.Context, report *models.TelemetryReport) error {
	if report == nil {
		return errors.New("report is nil")
	}

	current, err := c.Latest(ctx, report.DeviceID)
	if err == nil && current.RecordedAt.After(report.RecordedAt) {
		return nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+report.DeviceID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Latest returns the device's cached position, or ErrNotCached.
func (c *Cache) Latest(ctx context.Context, deviceID string) (*models.TelemetryReport, error) {
	data, err := c.client.Get(ctx, keyPrefix+deviceID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	report := &models.TelemetryReport{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return report, nil
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

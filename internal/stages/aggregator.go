package stages

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

// PositionCache receives each device's newest position. Satisfied by
// devicecache.Cache.
type PositionCache interface {
	SetLatest(ctx context.Context, report *models.TelemetryReport) error
}

// DeviceStats is the rolling view the aggregator keeps per device.
type DeviceStats struct {
	ReportCount   int64     `json:"reportCount"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
	LastLatitude  float64   `json:"lastLatitude"`
	LastLongitude float64   `json:"lastLongitude"`
}

// Aggregator folds every report into per-device rolling statistics and
// pushes the newest position into the cache. It creates no alerts.
type Aggregator struct {
	mu     sync.RWMutex
	stats  map[string]*DeviceStats
	cache  PositionCache
	logger *logging.Logger
}

// NewAggregator creates the stage. cache may be nil when the position
// cache is disabled.
func NewAggregator(cache PositionCache, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		stats:  make(map[string]*DeviceStats),
		cache:  cache,
		logger: logger,
	}
}

// Name implements bus.Subscriber.
func (a *Aggregator) Name() string { return "aggregator" }

// Handle folds one report into the rolling view. It never fails: a cache
// write problem is logged and the in-memory view still advances.
func (a *Aggregator) Handle(ctx context.Context, event *models.TelemetryEvent) error {
	if event == nil || event.Report == nil {
		a.logger.WarnContext(ctx, "skipping event without report", logging.Stage(a.Name()))
		return nil
	}
	report := event.Report

	a.mu.Lock()
	stats, ok := a.stats[report.DeviceID]
	if !ok {
		stats = &DeviceStats{FirstSeen: report.RecordedAt}
		a.stats[report.DeviceID] = stats
	}
	stats.ReportCount++
	if !report.RecordedAt.Before(stats.LastSeen) {
		stats.LastSeen = report.RecordedAt
		stats.LastLatitude = report.Latitude
		stats.LastLongitude = report.Longitude
	}
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.SetLatest(ctx, report); err != nil {
			a.logger.WarnContext(ctx, "failed to update position cache",
				logging.Stage(a.Name()),
				logging.DeviceID(report.DeviceID),
				logging.Err(err),
			)
		}
	}
	return nil
}

// Stats returns a copy of the rolling view for one device.
func (a *Aggregator) Stats(deviceID string) (DeviceStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats, ok := a.stats[deviceID]
	if !ok {
		return DeviceStats{}, false
	}
	return *stats, true
}

// DeviceCount returns how many devices have reported.
func (a *Aggregator) DeviceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.stats)
}

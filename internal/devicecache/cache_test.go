package devicecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache, err := New("redis://"+mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func report(deviceID string, lat, lon float64, recordedAt time.Time) *models.TelemetryReport {
	return &models.TelemetryReport{
		ID:         "report-1",
		DeviceID:   deviceID,
		Latitude:   lat,
		Longitude:  lon,
		RecordedAt: recordedAt,
		ReceivedAt: time.Now(),
	}
}

func TestCache_SetAndGetLatest(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	stored := report("truck-1", 52.37, 4.89, time.Now().UTC())
	require.NoError(t, cache.SetLatest(ctx, stored))

	got, err := cache.Latest(ctx, "truck-1")
	require.NoError(t, err)
	assert.Equal(t, "truck-1", got.DeviceID)
	assert.Equal(t, 52.37, got.Latitude)
	assert.True(t, got.RecordedAt.Equal(stored.RecordedAt))
}

func TestCache_LatestMiss(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	_, err := cache.Latest(context.Background(), "truck-9")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestCache_NewerReportWins(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, cache.SetLatest(ctx, report("truck-1", 52.0, 4.0, now)))
	require.NoError(t, cache.SetLatest(ctx, report("truck-1", 52.1, 4.1, now.Add(time.Minute))))

	got, err := cache.Latest(ctx, "truck-1")
	require.NoError(t, err)
	assert.Equal(t, 52.1, got.Latitude)
}

func TestCache_StaleReportIgnored(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, cache.SetLatest(ctx, report("truck-1", 52.1, 4.1, now)))

	// An out-of-order older report must not overwrite the newer position.
	require.NoError(t, cache.SetLatest(ctx, report("truck-1", 52.0, 4.0, now.Add(-time.Hour))))

	got, err := cache.Latest(ctx, "truck-1")
	require.NoError(t, err)
	assert.Equal(t, 52.1, got.Latitude)
}

func TestCache_EntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.SetLatest(ctx, report("truck-1", 52.0, 4.0, time.Now().UTC())))

	mr.FastForward(2 * time.Minute)

	_, err := cache.Latest(ctx, "truck-1")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestCache_NilReportRejected(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)

	assert.Error(t, cache.SetLatest(context.Background(), nil))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-url", time.Hour)
	assert.Error(t, err)
}

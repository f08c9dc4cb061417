package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// MemoryAlertRepository is an in-memory AlertRepository for tests and
// single-process development. It enforces the same fingerprint
// uniqueness as the Postgres schema.
type MemoryAlertRepository struct {
	mu            sync.RWMutex
	alerts        []*models.Alert
	byFingerprint map[string]*models.Alert
}

// NewMemoryAlertRepository creates an empty in-memory alert store.
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{
		byFingerprint: make(map[string]*models.Alert),
	}
}

// Create inserts the alert unless its fingerprint is already present.
func (r *MemoryAlertRepository) Create(_ context.Context, a *models.Alert) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byFingerprint[a.Fingerprint]; exists {
		return false, nil
	}

	stored := *a
	r.alerts = append(r.alerts, &stored)
	r.byFingerprint[stored.Fingerprint] = &stored
	return true, nil
}

// GetByFingerprint returns the alert with the given fingerprint.
func (r *MemoryAlertRepository) GetByFingerprint(_ context.Context, fingerprint string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byFingerprint[fingerprint]
	if !ok {
		return nil, ErrAlertNotFound
	}
	copied := *a
	return &copied, nil
}

// List returns one page of matching alerts plus the total match count.
func (r *MemoryAlertRepository) List(_ context.Context, filter AlertFilter, page AlertPage) ([]*models.Alert, int, error) {
	r.mu.RLock()
	matched := make([]*models.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if matches(a, filter) {
			matched = append(matched, a)
		}
	}
	r.mu.RUnlock()

	sortAlerts(matched, page.SortColumn, page.SortDesc)

	total := len(matched)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	out := make([]*models.Alert, 0, end-start)
	for _, a := range matched[start:end] {
		copied := *a
		out = append(out, &copied)
	}
	return out, total, nil
}

func matches(a *models.Alert, f AlertFilter) bool {
	if f.DeviceID != "" && a.DeviceID != f.DeviceID {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if !f.Start.IsZero() && a.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && a.CreatedAt.After(f.End) {
		return false
	}
	return true
}

func sortAlerts(alerts []*models.Alert, column string, desc bool) {
	less := func(a, b *models.Alert) bool {
		switch column {
		case "device_id":
			return a.DeviceID < b.DeviceID
		case "alert_type":
			return a.Type < b.Type
		case "severity":
			return a.Severity < b.Severity
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if desc {
			return less(alerts[j], alerts[i])
		}
		return less(alerts[i], alerts[j])
	})
}

// DeleteOlderThan removes alerts created before cutoff.
func (r *MemoryAlertRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.alerts[:0]
	var deleted int64
	for _, a := range r.alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(r.byFingerprint, a.Fingerprint)
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.alerts = kept
	return deleted, nil
}

// CountsBySeverity aggregates stored alerts per severity.
func (r *MemoryAlertRepository) CountsBySeverity(_ context.Context) (map[models.Severity]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[models.Severity]int64{}
	for _, a := range r.alerts {
		counts[a.Severity]++
	}
	return counts, nil
}

// Close implements AlertRepository.
func (r *MemoryAlertRepository) Close() error {
	return nil
}

// MemoryTelemetryRepository is an in-memory TelemetryRepository for tests
// and single-process development.
type MemoryTelemetryRepository struct {
	mu      sync.RWMutex
	reports map[string][]*models.TelemetryReport
}

// NewMemoryTelemetryRepository creates an empty in-memory telemetry store.
func NewMemoryTelemetryRepository() *MemoryTelemetryRepository {
	return &MemoryTelemetryRepository{
		reports: make(map[string][]*models.TelemetryReport),
	}
}

// Insert persists one raw report.
func (r *MemoryTelemetryRepository) Insert(_ context.Context, report *models.TelemetryReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *report
	r.reports[report.DeviceID] = append(r.reports[report.DeviceID], &stored)
	return nil
}

// Latest returns the newest report for a device by recording time.
func (r *MemoryTelemetryRepository) Latest(_ context.Context, deviceID string) (*models.TelemetryReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reports := r.reports[deviceID]
	if len(reports) == 0 {
		return nil, ErrReportNotFound
	}

	latest := reports[0]
	for _, report := range reports[1:] {
		if report.RecordedAt.After(latest.RecordedAt) {
			latest = report
		}
	}
	copied := *latest
	return &copied, nil
}

// Close implements TelemetryRepository.
func (r *MemoryTelemetryRepository) Close() error {
	return nil
}

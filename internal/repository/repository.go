// Package repository persists alerts and raw telemetry reports.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

var (
	// ErrAlertNotFound is returned when no alert matches a lookup.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrReportNotFound is returned when a device has no stored reports.
	ErrReportNotFound = errors.New("telemetry report not found")
)

// AlertFilter narrows alert queries. Zero-valued fields are ignored, so
// filters combine independently.
type AlertFilter struct {
	DeviceID string
	Type     models.AlertType
	Severity models.Severity
	Start    time.Time
	End      time.Time
}

// AlertPage selects a window of a filtered alert listing. SortColumn and
// SortDesc must already be validated against the sortable column
// whitelist by the caller.
type AlertPage struct {
	Limit      int
	Offset     int
	SortColumn string
	SortDesc   bool
}

// AlertRepository stores alerts with a uniqueness guarantee on the
// fingerprint column.
type AlertRepository interface {
	// Create inserts the alert. When an alert with the same fingerprint
	// already exists the insert is a no-op and Create returns false with
	// no error; the storage uniqueness constraint makes this race-safe
	// under concurrent identical creations.
	Create(ctx context.Context, alert *models.Alert) (bool, error)

	// GetByFingerprint returns the alert with the given fingerprint, or
	// ErrAlertNotFound.
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error)

	// List returns one page of matching alerts plus the total match count.
	List(ctx context.Context, filter AlertFilter, page AlertPage) ([]*models.Alert, int, error)

	// DeleteOlderThan removes alerts created before cutoff and returns
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountsBySeverity returns the number of stored alerts per severity.
	CountsBySeverity(ctx context.Context) (map[models.Severity]int64, error)

	Close() error
}

// TelemetryRepository stores raw location reports.
type TelemetryRepository interface {
	// Insert persists one report.
	Insert(ctx context.Context, report *models.TelemetryReport) error

	// Latest returns the most recent report for the device, or
	// ErrReportNotFound.
	Latest(ctx context.Context, deviceID string) (*models.TelemetryReport, error)

	Close() error
}

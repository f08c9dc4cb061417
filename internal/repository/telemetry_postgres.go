package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// PostgresTelemetryRepository implements TelemetryRepository using PostgreSQL.
type PostgresTelemetryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTelemetryRepository creates a telemetry repository on an
// existing pool.
func NewPostgresTelemetryRepository(pool *pgxpool.Pool) *PostgresTelemetryRepository {
	return &PostgresTelemetryRepository{pool: pool}
}

// Insert persists one raw report.
func (r *PostgresTelemetryRepository) Insert(ctx context.Context, report *models.TelemetryReport) error {
	query := `
		INSERT INTO telemetry_reports (id, device_id, latitude, longitude, recorded_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		report.ID, report.DeviceID, report.Latitude, report.Longitude,
		report.RecordedAt, report.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry report: %w", err)
	}

	return nil
}

// Latest returns the newest report for a device by recording time.
func (r *PostgresTelemetryRepository) Latest(ctx context.Context, deviceID string) (*models.TelemetryReport, error) {
	query := `
		SELECT id, device_id, latitude, longitude, recorded_at, received_at
		FROM telemetry_reports
		WHERE device_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	report := &models.TelemetryReport{}
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&report.ID, &report.DeviceID, &report.Latitude, &report.Longitude,
		&report.RecordedAt, &report.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}

	return report, nil
}

// Close is a no-op; the shared pool is closed by its owner.
func (r *PostgresTelemetryRepository) Close() error {
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// PostgresAlertRepository implements AlertRepository using PostgreSQL.
type PostgresAlertRepository struct {
	pool *pgxpool.Pool
}

// NewPool creates a pgx connection pool shared by the Postgres
// repositories.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresAlertRepository creates an alert repository on an existing pool.
func NewPostgresAlertRepository(pool *pgxpool.Pool) *PostgresAlertRepository {
	return &PostgresAlertRepository{pool: pool}
}

// Create inserts an alert; a fingerprint conflict is a silent no-op and
// reported via the returned bool. The unique index on fingerprint is the
// backstop for concurrent identical creations.
func (r *PostgresAlertRepository) Create(ctx context.Context, a *models.Alert) (bool, error) {
	query := `
		INSERT INTO alerts (id, device_id, alert_type, severity, message, latitude, longitude, stage, fingerprint, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (fingerprint) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.DeviceID, a.Type, a.Severity, a.Message,
		a.Latitude, a.Longitude, a.Stage, a.Fingerprint, a.Metadata, a.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create alert: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// GetByFingerprint retrieves an alert by its dedup fingerprint.
func (r *PostgresAlertRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	query := `
		SELECT id, device_id, alert_type, severity, message, latitude, longitude, stage, fingerprint, metadata, created_at
		FROM alerts
		WHERE fingerprint = $1
	`

	a := &models.Alert{}
	err := r.pool.QueryRow(ctx, query, fingerprint).Scan(
		&a.ID, &a.DeviceID, &a.Type, &a.Severity, &a.Message,
		&a.Latitude, &a.Longitude, &a.Stage, &a.Fingerprint, &a.Metadata, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return a, nil
}

// List retrieves a filtered, sorted page of alerts with the total count.
func (r *PostgresAlertRepository) List(ctx context.Context, filter AlertFilter, page AlertPage) ([]*models.Alert, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if filter.DeviceID != "" {
		whereClause += fmt.Sprintf(" AND device_id = $%d", argPos)
		args = append(args, filter.DeviceID)
		argPos++
	}
	if filter.Type != "" {
		whereClause += fmt.Sprintf(" AND alert_type = $%d", argPos)
		args = append(args, filter.Type)
		argPos++
	}
	if filter.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, filter.Severity)
		argPos++
	}
	if !filter.Start.IsZero() {
		whereClause += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, filter.Start)
		argPos++
	}
	if !filter.End.IsZero() {
		whereClause += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, filter.End)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	direction := "ASC"
	if page.SortDesc {
		direction = "DESC"
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`
		SELECT id, device_id, alert_type, severity, message, latitude, longitude, stage, fingerprint, metadata, created_at
		FROM alerts
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, page.SortColumn, direction, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		a := &models.Alert{}
		if err := rows.Scan(
			&a.ID, &a.DeviceID, &a.Type, &a.Severity, &a.Message,
			&a.Latitude, &a.Longitude, &a.Stage, &a.Fingerprint, &a.Metadata, &a.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return alerts, total, nil
}

// DeleteOlderThan removes alerts past the retention cutoff.
func (r *PostgresAlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM alerts WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountsBySeverity aggregates stored alerts per severity.
func (r *PostgresAlertRepository) CountsBySeverity(ctx context.Context) (map[models.Severity]int64, error) {
	rows, err := r.pool.Query(ctx, "SELECT severity, COUNT(*) FROM alerts GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by severity: %w", err)
	}
	defer rows.Close()

	counts := map[models.Severity]int64{}
	for rows.Next() {
		var severity models.Severity
		var count int64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts[severity] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// Close is a no-op; the shared pool is closed by its owner.
func (r *PostgresAlertRepository) Close() error {
	return nil
}

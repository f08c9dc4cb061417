package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/metrics"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/notifier"
	"github.com/fleetwatch/fleetwatch/internal/repository"
)

var (
	// ErrInvalidPage is returned for a negative page index.
	ErrInvalidPage = errors.New("page index must not be negative")

	// ErrInvalidSort is returned for an unknown sort field or direction.
	ErrInvalidSort = errors.New("invalid sort parameter")
)

// sortColumns whitelists API sort fields against repository columns.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"deviceId":  "device_id",
	"alertType": "alert_type",
	"severity":  "severity",
}

// AlertServiceConfig tunes pagination bounds and creation retries.
type AlertServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	CreateAttempts  int
	RetryBackoff    time.Duration
}

// DefaultAlertServiceConfig returns the standard bounds.
func DefaultAlertServiceConfig() AlertServiceConfig {
	return AlertServiceConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		CreateAttempts:  3,
		RetryBackoff:    100 * time.Millisecond,
	}
}

// AlertService owns alert creation (with fingerprint dedup), querying,
// statistics, and retention cleanup.
type AlertService struct {
	repo     repository.AlertRepository
	notifier notifier.Notifier
	logger   *logging.Logger
	cfg      AlertServiceConfig
}

// NewAlertService creates an alert service.
func NewAlertService(repo repository.AlertRepository, n notifier.Notifier, logger *logging.Logger, cfg AlertServiceConfig) *AlertService {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = 3
	}
	return &AlertService{repo: repo, notifier: n, logger: logger, cfg: cfg}
}

// Create persists an alert for the request, deduplicating on the
// fingerprint: when an alert with the same fingerprint already exists the
// existing alert is returned and nothing is written. A concurrent
// identical creation resolved by the storage uniqueness constraint is
// treated the same way, not as an error. Transient storage failures are
// retried a bounded number of times; exhausting them drops the alert.
func (s *AlertService) Create(ctx context.Context, req *models.AlertRequest) (*models.Alert, error) {
	if req == nil {
		return nil, errors.New("alert request is nil")
	}
	if req.DeviceID == "" {
		return nil, errors.New("alert request missing device id")
	}
	if !models.ValidAlertType(req.Type) {
		return nil, fmt.Errorf("invalid alert type: %s", req.Type)
	}
	if !models.ValidSeverity(req.Severity) {
		return nil, fmt.Errorf("invalid severity: %s", req.Severity)
	}

	fingerprint := req.Fingerprint()

	// Fast path: the same condition was already alerted.
	if existing, err := s.repo.GetByFingerprint(ctx, fingerprint); err == nil {
		metrics.AlertsDeduplicated.Inc()
		return existing, nil
	} else if !errors.Is(err, repository.ErrAlertNotFound) {
		s.logger.WarnContext(ctx, "fingerprint lookup failed, attempting insert",
			logging.Err(err))
	}

	alertUUID, _ := uuid.NewV7()
	alert := &models.Alert{
		ID:          alertUUID.String(),
		DeviceID:    req.DeviceID,
		Type:        req.Type,
		Severity:    req.Severity,
		Message:     req.Message,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Stage:       req.Stage,
		Fingerprint: fingerprint,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now(),
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.CreateAttempts; attempt++ {
		created, err := s.repo.Create(ctx, alert)
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "alert insert failed",
				logging.DeviceID(req.DeviceID),
				"attempt", attempt,
				logging.Err(err),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
			continue
		}

		if !created {
			// Lost the race to a concurrent identical creation.
			metrics.AlertsDeduplicated.Inc()
			return s.repo.GetByFingerprint(ctx, fingerprint)
		}

		metrics.AlertsCreated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
		s.notify(ctx, alert)
		return alert, nil
	}

	metrics.AlertsDropped.Inc()
	return nil, fmt.Errorf("alert creation failed after %d attempts: %w", s.cfg.CreateAttempts, lastErr)
}

func (s *AlertService) notify(ctx context.Context, alert *models.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AlertCreated(ctx, alert); err != nil {
		s.logger.WarnContext(ctx, "alert notification failed",
			logging.AlertID(alert.ID),
			logging.Err(err),
		)
	}
}

// AlertQuery describes a filtered, paginated alert listing.
type AlertQuery struct {
	DeviceID string
	Type     models.AlertType
	Severity models.Severity
	Start    time.Time
	End      time.Time

	Page int
	Size int
	Sort string // "field,direction"; empty means newest first
}

// Pageable echoes the window a page was selected with.
type Pageable struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// AlertPage is one page of query results.
type AlertPage struct {
	Content       []*models.Alert `json:"content"`
	TotalElements int             `json:"totalElements"`
	TotalPages    int             `json:"totalPages"`
	Pageable      Pageable        `json:"pageable"`
}

// Query lists alerts matching the filters. An oversized page size is
// clamped to the configured maximum; a negative page index is a client
// error. Sorting defaults to created_at descending.
func (s *AlertService) Query(ctx context.Context, q AlertQuery) (*AlertPage, error) {
	if q.Page < 0 {
		return nil, ErrInvalidPage
	}
	size := q.Size
	if size <= 0 {
		size = s.cfg.DefaultPageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	column, desc, err := parseSort(q.Sort)
	if err != nil {
		return nil, err
	}

	alerts, total, err := s.repo.List(ctx,
		repository.AlertFilter{
			DeviceID: q.DeviceID,
			Type:     q.Type,
			Severity: q.Severity,
			Start:    q.Start,
			End:      q.End,
		},
		repository.AlertPage{
			Limit:      size,
			Offset:     q.Page * size,
			SortColumn: column,
			SortDesc:   desc,
		},
	)
	if err != nil {
		return nil, err
	}

	totalPages := (total + size - 1) / size

	return &AlertPage{
		Content:       alerts,
		TotalElements: total,
		TotalPages:    totalPages,
		Pageable:      Pageable{Page: q.Page, Size: size},
	}, nil
}

func parseSort(sort string) (column string, desc bool, err error) {
	if sort == "" {
		return "created_at", true, nil
	}

	field, direction, found := strings.Cut(sort, ",")
	if !found {
		direction = "desc"
	}

	column, ok := sortColumns[field]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown field %q", ErrInvalidSort, field)
	}

	switch direction {
	case "asc":
		return column, false, nil
	case "desc":
		return column, true, nil
	default:
		return "", false, fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, direction)
	}
}

// Cleanup deletes alerts older than the retention window and returns how
// many were removed.
func (s *AlertService) Cleanup(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %v", window)
	}

	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, err
	}

	metrics.RetentionDeleted.Add(float64(deleted))
	if deleted > 0 {
		s.logger.InfoContext(ctx, "retention cleanup removed alerts", "deleted", deleted)
	}
	return deleted, nil
}

// CountsBySeverity returns the stored alert count for every severity,
// including zeroes for severities with no alerts.
func (s *AlertService) CountsBySeverity(ctx context.Context) (map[models.Severity]int64, error) {
	counts, err := s.repo.CountsBySeverity(ctx)
	if err != nil {
		return nil, err
	}

	for _, sev := range []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical} {
		if _, ok := counts[sev]; !ok {
			counts[sev] = 0
		}
	}
	return counts, nil
}

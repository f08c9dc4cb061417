package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/repository"
)

type mockAlertRepository struct {
	createFunc           func(ctx context.Context, alert *models.Alert) (bool, error)
	getByFingerprintFunc func(ctx context.Context, fingerprint string) (*models.Alert, error)
	listFunc             func(ctx context.Context, filter repository.AlertFilter, page repository.AlertPage) ([]*models.Alert, int, error)
	deleteOlderThanFunc  func(ctx context.Context, cutoff time.Time) (int64, error)
	countsFunc           func(ctx context.Context) (map[models.Severity]int64, error)
}

func (m *mockAlertRepository) Create(ctx context.Context, alert *models.Alert) (bool, error) {
	return m.createFunc(ctx, alert)
}

func (m *mockAlertRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	return m.getByFingerprintFunc(ctx, fingerprint)
}

func (m *mockAlertRepository) List(ctx context.Context, filter repository.AlertFilter, page repository.AlertPage) ([]*models.Alert, int, error) {
	return m.listFunc(ctx, filter, page)
}

func (m *mockAlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteOlderThanFunc(ctx, cutoff)
}

func (m *mockAlertRepository) CountsBySeverity(ctx context.Context) (map[models.Severity]int64, error) {
	return m.countsFunc(ctx)
}

func (m *mockAlertRepository) Close() error { return nil }

type mockNotifier struct {
	alertCreatedFunc func(ctx context.Context, alert *models.Alert) error

	mu     sync.Mutex
	alerts []*models.Alert
}

func (m *mockNotifier) AlertCreated(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	if m.alertCreatedFunc != nil {
		return m.alertCreatedFunc(ctx, alert)
	}
	return nil
}

func (m *mockNotifier) Close() error { return nil }

func (m *mockNotifier) notified() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func validRequest() *models.AlertRequest {
	return &models.AlertRequest{
		DeviceID: "truck-1",
		Type:     models.AlertTypeAnomaly,
		Severity: models.SeverityHigh,
		Message:  "Invalid coordinates reported",
		Stage:    "anomaly-detector",
	}
}

func fastConfig() AlertServiceConfig {
	cfg := DefaultAlertServiceConfig()
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestAlertService_CreateNewAlert(t *testing.T) {
	var stored *models.Alert
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			return nil, repository.ErrAlertNotFound
		},
		createFunc: func(_ context.Context, alert *models.Alert) (bool, error) {
			stored = alert
			return true, nil
		},
	}
	n := &mockNotifier{}
	svc := NewAlertService(repo, n, logging.Default(), fastConfig())

	req := validRequest()
	alert, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, req.Fingerprint(), alert.Fingerprint)
	assert.False(t, alert.CreatedAt.IsZero())
	assert.Same(t, stored, alert)
	assert.Equal(t, 1, n.notified())
}

func TestAlertService_CreateDedupFastPath(t *testing.T) {
	existing := &models.Alert{ID: "existing-id", Fingerprint: validRequest().Fingerprint()}
	createCalled := false
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			return existing, nil
		},
		createFunc: func(context.Context, *models.Alert) (bool, error) {
			createCalled = true
			return true, nil
		},
	}
	n := &mockNotifier{}
	svc := NewAlertService(repo, n, logging.Default(), fastConfig())

	alert, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "existing-id", alert.ID)
	assert.False(t, createCalled)
	assert.Equal(t, 0, n.notified(), "dedup must not notify")
}

func TestAlertService_CreateLosesRaceToConcurrentInsert(t *testing.T) {
	winner := &models.Alert{ID: "winner-id", Fingerprint: validRequest().Fingerprint()}
	lookups := 0
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			lookups++
			if lookups == 1 {
				// Not there yet when we checked...
				return nil, repository.ErrAlertNotFound
			}
			return winner, nil
		},
		createFunc: func(context.Context, *models.Alert) (bool, error) {
			// ...but someone else inserted it first.
			return false, nil
		},
	}
	n := &mockNotifier{}
	svc := NewAlertService(repo, n, logging.Default(), fastConfig())

	alert, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "winner-id", alert.ID)
	assert.Equal(t, 0, n.notified())
}

func TestAlertService_CreateRetriesTransientFailure(t *testing.T) {
	attempts := 0
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			return nil, repository.ErrAlertNotFound
		},
		createFunc: func(context.Context, *models.Alert) (bool, error) {
			attempts++
			if attempts < 3 {
				return false, errors.New("connection reset")
			}
			return true, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	alert, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, 3, attempts)
}

func TestAlertService_CreateDropsAfterExhaustedRetries(t *testing.T) {
	attempts := 0
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			return nil, repository.ErrAlertNotFound
		},
		createFunc: func(context.Context, *models.Alert) (bool, error) {
			attempts++
			return false, errors.New("database down")
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	_, err := svc.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestAlertService_CreateValidation(t *testing.T) {
	repo := &mockAlertRepository{}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())
	ctx := context.Background()

	_, err := svc.Create(ctx, nil)
	assert.Error(t, err)

	req := validRequest()
	req.DeviceID = ""
	_, err = svc.Create(ctx, req)
	assert.Error(t, err)

	req = validRequest()
	req.Type = models.AlertType("SPEEDING")
	_, err = svc.Create(ctx, req)
	assert.Error(t, err)

	req = validRequest()
	req.Severity = models.Severity("URGENT")
	_, err = svc.Create(ctx, req)
	assert.Error(t, err)
}

func TestAlertService_CreateNotifierFailureIsNotFatal(t *testing.T) {
	repo := &mockAlertRepository{
		getByFingerprintFunc: func(context.Context, string) (*models.Alert, error) {
			return nil, repository.ErrAlertNotFound
		},
		createFunc: func(context.Context, *models.Alert) (bool, error) {
			return true, nil
		},
	}
	n := &mockNotifier{
		alertCreatedFunc: func(context.Context, *models.Alert) error {
			return errors.New("nats unavailable")
		},
	}
	svc := NewAlertService(repo, n, logging.Default(), fastConfig())

	alert, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, alert)
}

func TestAlertService_QueryPagination(t *testing.T) {
	var gotPage repository.AlertPage
	repo := &mockAlertRepository{
		listFunc: func(_ context.Context, _ repository.AlertFilter, page repository.AlertPage) ([]*models.Alert, int, error) {
			gotPage = page
			return make([]*models.Alert, 20), 45, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	page, err := svc.Query(context.Background(), AlertQuery{Page: 1, Size: 20})
	require.NoError(t, err)

	assert.Equal(t, 45, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 1, page.Pageable.Page)
	assert.Equal(t, 20, page.Pageable.Size)
	assert.Equal(t, 20, gotPage.Limit)
	assert.Equal(t, 20, gotPage.Offset)
	assert.Equal(t, "created_at", gotPage.SortColumn)
	assert.True(t, gotPage.SortDesc)
}

func TestAlertService_QuerySizeBounds(t *testing.T) {
	var gotLimit int
	repo := &mockAlertRepository{
		listFunc: func(_ context.Context, _ repository.AlertFilter, page repository.AlertPage) ([]*models.Alert, int, error) {
			gotLimit = page.Limit
			return nil, 0, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())
	ctx := context.Background()

	// Oversized requests clamp to the max.
	_, err := svc.Query(ctx, AlertQuery{Size: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)

	// Zero means default.
	_, err = svc.Query(ctx, AlertQuery{})
	require.NoError(t, err)
	assert.Equal(t, 20, gotLimit)
}

func TestAlertService_QueryNegativePage(t *testing.T) {
	svc := NewAlertService(&mockAlertRepository{}, &mockNotifier{}, logging.Default(), fastConfig())

	_, err := svc.Query(context.Background(), AlertQuery{Page: -1})
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestAlertService_QuerySortParsing(t *testing.T) {
	tests := []struct {
		sort       string
		wantColumn string
		wantDesc   bool
		wantErr    bool
	}{
		{"", "created_at", true, false},
		{"createdAt,asc", "created_at", false, false},
		{"deviceId,desc", "device_id", true, false},
		{"severity", "severity", true, false},
		{"alertType,asc", "alert_type", false, false},
		{"fingerprint,asc", "", false, true},
		{"createdAt,sideways", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			var gotPage repository.AlertPage
			repo := &mockAlertRepository{
				listFunc: func(_ context.Context, _ repository.AlertFilter, page repository.AlertPage) ([]*models.Alert, int, error) {
					gotPage = page
					return nil, 0, nil
				},
			}
			svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

			_, err := svc.Query(context.Background(), AlertQuery{Sort: tt.sort})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSort)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantColumn, gotPage.SortColumn)
			assert.Equal(t, tt.wantDesc, gotPage.SortDesc)
		})
	}
}

func TestAlertService_QueryPassesFilters(t *testing.T) {
	var gotFilter repository.AlertFilter
	repo := &mockAlertRepository{
		listFunc: func(_ context.Context, filter repository.AlertFilter, _ repository.AlertPage) ([]*models.Alert, int, error) {
			gotFilter = filter
			return nil, 0, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	start := time.Now().Add(-time.Hour)
	end := time.Now()
	_, err := svc.Query(context.Background(), AlertQuery{
		DeviceID: "truck-1",
		Type:     models.AlertTypeGeofence,
		Severity: models.SeverityCritical,
		Start:    start,
		End:      end,
	})
	require.NoError(t, err)

	assert.Equal(t, "truck-1", gotFilter.DeviceID)
	assert.Equal(t, models.AlertTypeGeofence, gotFilter.Type)
	assert.Equal(t, models.SeverityCritical, gotFilter.Severity)
	assert.Equal(t, start, gotFilter.Start)
	assert.Equal(t, end, gotFilter.End)
}

func TestAlertService_Cleanup(t *testing.T) {
	var gotCutoff time.Time
	repo := &mockAlertRepository{
		deleteOlderThanFunc: func(_ context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 7, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	deleted, err := svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), gotCutoff, time.Second)

	_, err = svc.Cleanup(context.Background(), 0)
	assert.Error(t, err)
}

func TestAlertService_CountsBySeverityZeroFilled(t *testing.T) {
	repo := &mockAlertRepository{
		countsFunc: func(context.Context) (map[models.Severity]int64, error) {
			return map[models.Severity]int64{models.SeverityHigh: 4}, nil
		},
	}
	svc := NewAlertService(repo, &mockNotifier{}, logging.Default(), fastConfig())

	counts, err := svc.CountsBySeverity(context.Background())
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	assert.Equal(t, int64(4), counts[models.SeverityHigh])
	for _, sev := range []models.Severity{models.SeverityLow, models.SeverityMedium, models.SeverityCritical} {
		count, ok := counts[sev]
		assert.True(t, ok, "severity %s missing", sev)
		assert.Equal(t, int64(0), count, fmt.Sprintf("severity %s", sev))
	}
}

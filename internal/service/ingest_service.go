package service

import (
	"context"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/bus"
	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/metrics"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/ratelimit"
	"github.com/fleetwatch/fleetwatch/internal/repository"
)

// IngestService runs the admission-to-publish half of the pipeline: rate
// limiting, raw report persistence, then asynchronous fan-out.
type IngestService struct {
	limiter   *ratelimit.Limiter
	telemetry repository.TelemetryRepository
	bus       *bus.EventBus
	logger    *logging.Logger
}

// NewIngestService creates an ingestion service.
func NewIngestService(limiter *ratelimit.Limiter, telemetry repository.TelemetryRepository, eventBus *bus.EventBus, logger *logging.Logger) *IngestService {
	return &IngestService{
		limiter:   limiter,
		telemetry: telemetry,
		bus:       eventBus,
		logger:    logger,
	}
}

// Ingest admits one validated report. A denial from either the device
// key, the origin key, or the global bucket is returned in the Result
// with Allowed false; nothing is persisted or published for denied
// reports. Admitted reports are persisted and published for analysis
// before the call returns; the analysis itself runs asynchronously.
func (s *IngestService) Ingest(ctx context.Context, report *models.TelemetryReport, origin string) (ratelimit.Result, error) {
	if report == nil {
		return ratelimit.Result{}, fmt.Errorf("report is nil")
	}

	res := s.limiter.Admit(ratelimit.ClassDevice, report.DeviceID)
	if !res.Allowed {
		metrics.ReportsTotal.WithLabelValues("rate_limited").Inc()
		return res, nil
	}

	if origin != "" {
		originRes := s.limiter.Admit(ratelimit.ClassOrigin, origin)
		if !originRes.Allowed {
			metrics.ReportsTotal.WithLabelValues("rate_limited").Inc()
			return originRes, nil
		}
	}

	if err := s.telemetry.Insert(ctx, report); err != nil {
		metrics.ReportsTotal.WithLabelValues("storage_error").Inc()
		return res, fmt.Errorf("failed to persist report: %w", err)
	}

	s.bus.Publish(models.NewTelemetryEvent(report))
	metrics.ReportsTotal.WithLabelValues("accepted").Inc()

	s.logger.DebugContext(ctx, "report admitted",
		logging.DeviceID(report.DeviceID),
		"report_id", report.ID,
	)
	return res, nil
}

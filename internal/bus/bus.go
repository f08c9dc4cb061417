// Package bus provides the in-process publish mechanism that decouples
// ingestion from analysis. One published event fans out to every
// registered subscriber, each invocation scheduled independently on a
// shared worker pool.
package bus

import (
	"context"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/metrics"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Subscriber receives every published telemetry event.
type Subscriber interface {
	// Name identifies the subscriber in logs and metrics.
	Name() string

	// Handle processes one event. Returning an error marks the dispatch
	// as failed for this subscriber only; other subscribers are
	// unaffected and there is no retry.
	Handle(ctx context.Context, event *models.TelemetryEvent) error
}

// EventBus dispatches telemetry events to subscribers via a worker pool.
type EventBus struct {
	pool        *WorkerPool
	subscribers []Subscriber
	logger      *logging.Logger
}

// NewEventBus creates a bus backed by the given pool.
func NewEventBus(pool *WorkerPool, logger *logging.Logger) *EventBus {
	return &EventBus{pool: pool, logger: logger}
}

// Register adds subscribers. Not safe to call concurrently with Publish;
// registration happens once during startup.
func (b *EventBus) Register(subs ...Subscriber) {
	b.subscribers = append(b.subscribers, subs...)
}

// Publish schedules event delivery to every subscriber and returns
// without waiting for any of them. A subscriber failure or panic is
// logged and contained; it never reaches the publisher or the other
// subscribers. When the pool is saturated the dispatch runs on the
// calling goroutine, so publishing can briefly block but never loses an
// event.
func (b *EventBus) Publish(event *models.TelemetryEvent) {
	for _, sub := range b.subscribers {
		sub := sub
		b.pool.Submit(func() {
			b.dispatch(sub, event)
		})
	}
}

func (b *EventBus) dispatch(sub Subscriber, event *models.TelemetryEvent) {
	metrics.DispatchLatency.Observe(time.Since(event.CreatedAt).Seconds())

	deviceID := ""
	if event.Report != nil {
		deviceID = event.Report.DeviceID
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.StageFailures.WithLabelValues(sub.Name()).Inc()
			b.logger.Error("analysis stage panicked",
				logging.Stage(sub.Name()),
				logging.DeviceID(deviceID),
				"panic", r,
			)
		}
	}()

	if err := sub.Handle(context.Background(), event); err != nil {
		metrics.StageFailures.WithLabelValues(sub.Name()).Inc()
		b.logger.Error("analysis stage failed",
			logging.Stage(sub.Name()),
			logging.DeviceID(deviceID),
			logging.Err(err),
		)
	}
}

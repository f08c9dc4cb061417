// Package stages contains the analysis subscribers fed by the event bus.
// Each stage inspects one telemetry report independently and may ask the
// alert store to create alerts. Stages never reject a report: malformed
// input is logged and skipped.
package stages

import (
	"context"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// AlertSink is where stages send alert-creation requests. Creation is
// idempotent per fingerprint, so stages do not need to dedup themselves.
type AlertSink interface {
	Create(ctx context.Context, req *models.AlertRequest) (*models.Alert, error)
}

// Package notifier publishes alert lifecycle notifications to the message
// bus so downstream consumers (dashboards, pagers) can react without
// polling the alerts API. Publishing is fire-and-forget: a notification
// failure never affects alert creation.
package notifier

import (
	"context"

	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Subject constants for the FleetWatch message bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	SubjectAlertsCreated = "fleetwatch.alerts.created"
)

// Notifier announces newly created alerts.
type Notifier interface {
	// AlertCreated publishes a notification for a freshly persisted alert.
	AlertCreated(ctx context.Context, alert *models.Alert) error

	Close() error
}

// NoOpNotifier discards notifications (for tests or when messaging is
// disabled).
type NoOpNotifier struct{}

func (NoOpNotifier) AlertCreated(context.Context, *models.Alert) error { return nil }

func (NoOpNotifier) Close() error { return nil }

package stages

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

// extremeLatitude is the threshold above which a still-valid latitude is
// flagged as anomalous: regular fleet traffic does not operate past 80°.
const extremeLatitude = 80.0

// AnomalyDetector flags reports with impossible or implausible
// coordinates. Each rule that fires issues its own alert request.
type AnomalyDetector struct {
	alerts AlertSink
	logger *logging.Logger
}

// NewAnomalyDetector creates the stage.
func NewAnomalyDetector(alerts AlertSink, logger *logging.Logger) *AnomalyDetector {
	return &AnomalyDetector{alerts: alerts, logger: logger}
}

// Name implements bus.Subscriber.
func (d *AnomalyDetector) Name() string { return "anomaly-detector" }

// Handle checks one report against the anomaly rules.
func (d *AnomalyDetector) Handle(ctx context.Context, event *models.TelemetryEvent) error {
	if event == nil || event.Report == nil {
		d.logger.WarnContext(ctx, "skipping event without report", logging.Stage(d.Name()))
		return nil
	}
	report := event.Report

	var errs []error

	if !report.HasValidCoordinates() {
		lat, lon := report.Latitude, report.Longitude
		_, err := d.alerts.Create(ctx, &models.AlertRequest{
			DeviceID:  report.DeviceID,
			Type:      models.AlertTypeAnomaly,
			Severity:  models.SeverityHigh,
			Message:   fmt.Sprintf("Invalid coordinates reported: latitude %.4f, longitude %.4f", lat, lon),
			Latitude:  &lat,
			Longitude: &lon,
			Stage:     d.Name(),
			Metadata: map[string]any{
				"rule": "invalid_coordinates",
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid coordinates alert: %w", err))
		}
	} else if math.Abs(report.Latitude) > extremeLatitude {
		lat, lon := report.Latitude, report.Longitude
		_, err := d.alerts.Create(ctx, &models.AlertRequest{
			DeviceID:  report.DeviceID,
			Type:      models.AlertTypeAnomaly,
			Severity:  models.SeverityMedium,
			Message:   fmt.Sprintf("Extreme latitude reported: %.4f", lat),
			Latitude:  &lat,
			Longitude: &lon,
			Stage:     d.Name(),
			Metadata: map[string]any{
				"rule":      "extreme_latitude",
				"threshold": extremeLatitude,
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("extreme latitude alert: %w", err))
		}
	}

	return errors.Join(errs...)
}

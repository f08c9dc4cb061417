package stages

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

const earthRadiusKM = 6371.0

// GeofenceAlerter raises an alert when a report falls inside any of the
// configured restricted zones.
type GeofenceAlerter struct {
	zones  []Zone
	alerts AlertSink
	logger *logging.Logger
}

// NewGeofenceAlerter creates the stage. With no zones the stage is inert.
func NewGeofenceAlerter(zones []Zone, alerts AlertSink, logger *logging.Logger) *GeofenceAlerter {
	return &GeofenceAlerter{zones: zones, alerts: alerts, logger: logger}
}

// Name implements bus.Subscriber.
func (g *GeofenceAlerter) Name() string { return "geofence-alerter" }

// Handle checks one report against every configured zone.
func (g *GeofenceAlerter) Handle(ctx context.Context, event *models.TelemetryEvent) error {
	if event == nil || event.Report == nil {
		g.logger.WarnContext(ctx, "skipping event without report", logging.Stage(g.Name()))
		return nil
	}
	report := event.Report

	// Out-of-range coordinates cannot be placed on the sphere; the
	// anomaly stage owns those.
	if !report.HasValidCoordinates() {
		return nil
	}

	var errs []error
	for _, zone := range g.zones {
		distance := haversineKM(report.Latitude, report.Longitude, zone.Latitude, zone.Longitude)
		if distance > zone.RadiusKM {
			continue
		}

		lat, lon := report.Latitude, report.Longitude
		_, err := g.alerts.Create(ctx, &models.AlertRequest{
			DeviceID:  report.DeviceID,
			Type:      models.AlertTypeGeofence,
			Severity:  zone.Severity,
			Message:   fmt.Sprintf("Device entered restricted zone %q (%.2f km from center)", zone.Name, distance),
			Latitude:  &lat,
			Longitude: &lon,
			Stage:     g.Name(),
			Metadata: map[string]any{
				"zone":           zone.Name,
				"zone_latitude":  zone.Latitude,
				"zone_longitude": zone.Longitude,
				"radius_km":      zone.RadiusKM,
				"distance_km":    distance,
			},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("zone %q alert: %w", zone.Name, err))
		}
	}

	return errors.Join(errs...)
}

// haversineKM computes the great-circle distance between two points in
// kilometers.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

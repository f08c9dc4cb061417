package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestAlertRequest_FingerprintDeterministic(t *testing.T) {
	req := &AlertRequest{
		DeviceID: "truck-1",
		Type:     AlertTypeAnomaly,
		Severity: SeverityHigh,
		Message:  "Invalid coordinates reported",
	}

	assert.Equal(t, req.Fingerprint(), req.Fingerprint())
	assert.Len(t, req.Fingerprint(), 64)
}

func TestAlertRequest_FingerprintCoordinateCells(t *testing.T) {
	base := func(lat, lon float64) *AlertRequest {
		return &AlertRequest{
			DeviceID:  "truck-1",
			Type:      AlertTypeGeofence,
			Severity:  SeverityHigh,
			Message:   "Device entered restricted zone",
			Latitude:  ptr(lat),
			Longitude: ptr(lon),
		}
	}

	// Positions inside the same 0.01-degree cell collapse.
	assert.Equal(t, base(52.371, 4.891).Fingerprint(), base(52.373, 4.894).Fingerprint())

	// Crossing a cell boundary produces a distinct fingerprint.
	assert.NotEqual(t, base(52.371, 4.891).Fingerprint(), base(52.381, 4.891).Fingerprint())
	assert.NotEqual(t, base(52.371, 4.891).Fingerprint(), base(52.371, 4.901).Fingerprint())
}

func TestAlertRequest_FingerprintVariesByIdentity(t *testing.T) {
	a := &AlertRequest{DeviceID: "truck-1", Type: AlertTypeAnomaly, Message: "msg"}
	b := &AlertRequest{DeviceID: "truck-2", Type: AlertTypeAnomaly, Message: "msg"}
	c := &AlertRequest{DeviceID: "truck-1", Type: AlertTypeGeofence, Message: "msg"}
	d := &AlertRequest{DeviceID: "truck-1", Type: AlertTypeAnomaly, Message: "other"}

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestAlertRequest_FingerprintMessageIgnoredWithCoordinates(t *testing.T) {
	a := &AlertRequest{
		DeviceID:  "truck-1",
		Type:      AlertTypeGeofence,
		Message:   "first message",
		Latitude:  ptr(10.0),
		Longitude: ptr(20.0),
	}
	b := &AlertRequest{
		DeviceID:  "truck-1",
		Type:      AlertTypeGeofence,
		Message:   "different message",
		Latitude:  ptr(10.0),
		Longitude: ptr(20.0),
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestValidSeverity(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		assert.True(t, ValidSeverity(s))
	}
	assert.False(t, ValidSeverity(Severity("URGENT")))
	assert.False(t, ValidSeverity(Severity("")))
}

func TestValidAlertType(t *testing.T) {
	assert.True(t, ValidAlertType(AlertTypeAnomaly))
	assert.True(t, ValidAlertType(AlertTypeGeofence))
	assert.False(t, ValidAlertType(AlertType("SPEEDING")))
}

func TestTelemetryReport_HasValidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
		want bool
	}{
		{"origin", 0, 0, true},
		{"boundaries", 90, 180, true},
		{"negative boundaries", -90, -180, true},
		{"latitude too high", 90.0001, 0, false},
		{"latitude too low", -95, 0, false},
		{"longitude too high", 0, 180.5, false},
		{"longitude too low", 0, -181, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &TelemetryReport{Latitude: tt.lat, Longitude: tt.lon}
			assert.Equal(t, tt.want, r.HasValidCoordinates())
		})
	}
}

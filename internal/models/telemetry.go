package models

import (
	"errors"
	"time"
)

// TelemetryReport is a single position report from a device. The pipeline
// treats it as immutable after ingestion.
type TelemetryReport struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// TelemetryEvent wraps an admitted report for fan-out to analysis stages.
// CreatedAt is set once at publish time and used to measure dispatch latency.
type TelemetryEvent struct {
	Report    *TelemetryReport
	CreatedAt time.Time
}

// NewTelemetryEvent stamps a report for dispatch.
func NewTelemetryEvent(report *TelemetryReport) *TelemetryEvent {
	return &TelemetryEvent{
		Report:    report,
		CreatedAt: time.Now(),
	}
}

var (
	// ErrNilReport is returned by stages handed an event without a report.
	ErrNilReport = errors.New("telemetry report is nil")
)

// HasValidCoordinates reports whether latitude and longitude are inside
// the WGS84 ranges. Ingestion does not enforce this; the anomaly stage
// alerts on violations instead.
func (r *TelemetryReport) HasValidCoordinates() bool {
	return r.Latitude >= -90 && r.Latitude <= 90 &&
		r.Longitude >= -180 && r.Longitude <= 180
}

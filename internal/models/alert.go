package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// AlertType classifies what condition raised an alert.
type AlertType string

const (
	AlertTypeAnomaly  AlertType = "ANOMALY"
	AlertTypeGeofence AlertType = "GEOFENCE"
)

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ValidSeverity reports whether s is one of the known severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidAlertType reports whether t is one of the known alert types.
func ValidAlertType(t AlertType) bool {
	switch t {
	case AlertTypeAnomaly, AlertTypeGeofence:
		return true
	}
	return false
}

// Alert is a persisted detection. Alerts are never mutated after creation;
// they are removed only by retention cleanup.
type Alert struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"deviceId"`
	Type        AlertType      `json:"alertType"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	Stage       string         `json:"stage"`
	Fingerprint string         `json:"fingerprint"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AlertRequest is what an analysis stage asks the store to create.
type AlertRequest struct {
	DeviceID  string
	Type      AlertType
	Severity  Severity
	Message   string
	Latitude  *float64
	Longitude *float64
	Stage     string
	Metadata  map[string]any
}

// Fingerprint computes the dedup digest for a request: SHA-256 over
// device id, alert type, and a coarse context. When the request carries
// coordinates the context is the position rounded to 2 decimal places
// (cells of roughly 1.1 km), so repeated detections of the same condition
// in the same cell collapse into one alert. Requests without coordinates
// fall back to the message as context.
func (r *AlertRequest) Fingerprint() string {
	context := r.Message
	if r.Latitude != nil && r.Longitude != nil {
		context = fmt.Sprintf("%.2f,%.2f", *r.Latitude, *r.Longitude)
	}
	sum := sha256.Sum256([]byte(r.DeviceID + "|" + string(r.Type) + "|" + context))
	return hex.EncodeToString(sum[:])
}

package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService  = "service"
	FieldDeviceID = "device_id"
	FieldStage    = "stage"
	FieldAlertID  = "alert_id"
	FieldReportID = "report_id"
	FieldIP       = "ip"
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// DeviceID returns a slog attribute for the reporting device.
func DeviceID(id string) slog.Attr {
	return slog.String(FieldDeviceID, id)
}

// Stage returns a slog attribute for an analysis stage name.
func Stage(name string) slog.Attr {
	return slog.String(FieldStage, name)
}

// AlertID returns a slog attribute for an alert id.
func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// Err returns a slog attribute for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

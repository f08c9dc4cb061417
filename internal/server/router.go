package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetwatch/fleetwatch/internal/handlers"
	"github.com/fleetwatch/fleetwatch/internal/middleware"
)

// NewRouter constructs a ServeMux with all FleetWatch routes registered.
// apiKeys guards the ingestion endpoint; an empty list disables the check.
func NewRouter(telemetry *handlers.TelemetryHandler, alerts *handlers.AlertsHandler, apiKeys []string) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.Handle("/telemetry", middleware.APIKey(apiKeys, http.HandlerFunc(telemetry.HandleIngest)))
	mux.HandleFunc("/devices/", telemetry.HandleLatest)

	// Alerts API
	mux.HandleFunc("/api/alerts", alerts.HandleList)
	mux.HandleFunc("/api/alerts/", alerts.HandleDevice)

	// Health endpoints
	mux.HandleFunc("/healthz", alerts.HealthCheck)
	mux.HandleFunc("/readyz", alerts.HealthCheck)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwatch/fleetwatch/internal/httputil"
	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/ratelimit"
	"github.com/fleetwatch/fleetwatch/internal/repository"
	"github.com/fleetwatch/fleetwatch/internal/service"
)

// LatestCache is the optional fast path for latest-position lookups.
// Satisfied by devicecache.Cache.
type LatestCache interface {
	Latest(ctx context.Context, deviceID string) (*models.TelemetryReport, error)
}

// TelemetryHandler serves report ingestion and latest-position lookups.
type TelemetryHandler struct {
	ingest    *service.IngestService
	telemetry repository.TelemetryRepository
	cache     LatestCache
	logger    *logging.Logger
}

// NewTelemetryHandler creates the handler. cache may be nil.
func NewTelemetryHandler(ingest *service.IngestService, telemetry repository.TelemetryRepository, cache LatestCache, logger *logging.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		ingest:    ingest,
		telemetry: telemetry,
		cache:     cache,
		logger:    logger,
	}
}

type telemetryRequest struct {
	DeviceID  *string    `json:"deviceId"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

// HandleIngest handles POST /telemetry.
func (h *TelemetryHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DeviceID == nil || *req.DeviceID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		httputil.WriteError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	if math.IsNaN(*req.Latitude) || math.IsInf(*req.Latitude, 0) ||
		math.IsNaN(*req.Longitude) || math.IsInf(*req.Longitude, 0) {
		httputil.WriteError(w, http.StatusBadRequest, "coordinates must be finite numbers")
		return
	}

	now := time.Now()
	recordedAt := now
	if req.Timestamp != nil {
		recordedAt = *req.Timestamp
	}

	reportUUID, _ := uuid.NewV7()
	report := &models.TelemetryReport{
		ID:         reportUUID.String(),
		DeviceID:   *req.DeviceID,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		RecordedAt: recordedAt,
		ReceivedAt: now,
	}

	res, err := h.ingest.Ingest(r.Context(), report, getClientIP(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ingestion failed",
			logging.DeviceID(report.DeviceID),
			logging.Err(err),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to ingest report")
		return
	}

	if !res.Allowed {
		writeRateLimited(w, res)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":       report.ID,
		"deviceId": report.DeviceID,
	})
}

// writeRateLimited sends the 429 response with rate limit headers.
func writeRateLimited(w http.ResponseWriter, res ratelimit.Result) {
	retryAfterSec := int(math.Ceil(res.RetryAfter.Seconds()))
	reset := time.Now().Add(res.RetryAfter)

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	w.Header().Set("X-RateLimit-Retry-After", strconv.Itoa(retryAfterSec))

	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":           "rate limit exceeded",
		"reason":          res.Reason,
		"retryAfter":      retryAfterSec,
		"remainingTokens": res.Remaining,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleLatest handles GET /devices/{deviceId}/telemetry/latest.
func (h *TelemetryHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/devices/")
	deviceID := strings.TrimSuffix(path, "/telemetry/latest")
	if deviceID == "" || deviceID == path {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if h.cache != nil {
		if report, err := h.cache.Latest(r.Context(), deviceID); err == nil {
			httputil.WriteJSON(w, http.StatusOK, report)
			return
		}
	}

	report, err := h.telemetry.Latest(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "no reports for device")
			return
		}
		h.logger.ErrorContext(r.Context(), "latest report lookup failed",
			logging.DeviceID(deviceID),
			logging.Err(err),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get latest report")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

// getClientIP extracts the client address, preferring X-Forwarded-For.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

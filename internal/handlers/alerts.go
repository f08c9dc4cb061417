package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/httputil"
	"github.com/fleetwatch/fleetwatch/internal/logging"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/service"
)

// AlertsHandler serves the alerts query API.
type AlertsHandler struct {
	alerts *service.AlertService
	logger *logging.Logger
}

// NewAlertsHandler creates the handler.
func NewAlertsHandler(alerts *service.AlertService, logger *logging.Logger) *AlertsHandler {
	return &AlertsHandler{alerts: alerts, logger: logger}
}

// HandleList handles GET /api/alerts.
func (h *AlertsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.list(w, r, "")
}

// HandleDevice handles GET /api/alerts/{deviceId} and
// GET /api/alerts/statistics.
func (h *AlertsHandler) HandleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tail := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	if tail == "statistics" {
		h.statistics(w, r)
		return
	}
	if tail == "" || strings.Contains(tail, "/") {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	h.list(w, r, tail)
}

func (h *AlertsHandler) list(w http.ResponseWriter, r *http.Request, deviceID string) {
	query := service.AlertQuery{DeviceID: deviceID}
	params := r.URL.Query()

	var err error
	if query.Page, err = parseIntParam(params.Get("page"), 0); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid page parameter")
		return
	}
	if query.Size, err = parseIntParam(params.Get("size"), 0); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid size parameter")
		return
	}

	query.Sort = params.Get("sort")
	query.Type = models.AlertType(params.Get("alertType"))
	query.Severity = models.Severity(params.Get("severity"))
	if deviceID == "" {
		query.DeviceID = params.Get("deviceId")
	}

	if query.Start, err = parseTimeParam(params.Get("startDate")); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid startDate parameter")
		return
	}
	if query.End, err = parseTimeParam(params.Get("endDate")); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid endDate parameter")
		return
	}

	page, err := h.alerts.Query(r.Context(), query)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPage) || errors.Is(err, service.ErrInvalidSort) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "alert query failed", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *AlertsHandler) statistics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.alerts.CountsBySeverity(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "alert statistics failed", logging.Err(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"countsBySeverity": counts,
	})
}

// HealthCheck handles health check requests.
func (h *AlertsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseIntParam(s string, defaultVal int) (int, error) {
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

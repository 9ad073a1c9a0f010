package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	service *service.AlertService
	logger  *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		logger:  log,
	}
}

// List lists alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.AlertFilter{
		State:        r.URL.Query().Get("state"),
		Type:         r.URL.Query().Get("type"),
		Priority:     r.URL.Query().Get("priority"),
		MedicationID: r.URL.Query().Get("medication_id"),
	}

	alerts, total, err := h.service.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, meta(page, perPage, total))
}

// Get gets an alert by ID
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// SetState transitions an alert's state
func (h *AlertHandler) SetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		State string `json:"state" validate:"required,oneof=PENDIENTE_REPOSICION RESUELTA"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	alert, err := h.service.SetState(r.Context(), id, req.State, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alert)
}

// Scan triggers an immediate re-evaluation of every active medication
func (h *AlertHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ScanAll(r.Context()); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "scan completed"})
}

// Notifications returns the caller's pending alert notifications
func (h *AlertHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	role := httputil.GetUserRole(r.Context())

	pending, err := h.service.PendingNotifications(r.Context(), role)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pending)
}

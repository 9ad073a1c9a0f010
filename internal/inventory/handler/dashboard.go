package handler

import (
	"net/http"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// DashboardHandler handles dashboard endpoints
type DashboardHandler struct {
	medSvc   *service.MedicationService
	alertSvc *service.AlertService
	warnDays int
	logger   *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(medSvc *service.MedicationService, alertSvc *service.AlertService, warnDays int, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		medSvc:   medSvc,
		alertSvc: alertSvc,
		warnDays: warnDays,
		logger:   log,
	}
}

type dashboardStats struct {
	Inventory        *repository.Stats `json:"inventory"`
	UnresolvedAlerts int64             `json:"unresolved_alerts"`
}

// GetStats returns dashboard statistics
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.medSvc.GetStats(r.Context(), h.warnDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	alertCount, err := h.alertSvc.CountUnresolved(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, dashboardStats{
		Inventory:        stats,
		UnresolvedAlerts: alertCount,
	})
}

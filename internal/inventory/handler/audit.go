package handler

import (
	"net/http"
	"time"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// AuditHandler handles audit log endpoints
type AuditHandler struct {
	auditService *service.AuditService
	logger       *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(svc *service.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: svc,
		logger:       log,
	}
}

// List lists audit entries with optional filters
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.AuditFilter{
		Entity:   r.URL.Query().Get("entity"),
		EntityID: r.URL.Query().Get("entity_id"),
		Action:   r.URL.Query().Get("action"),
		UserID:   r.URL.Query().Get("user_id"),
	}

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			httputil.Error(w, errors.BadRequest("from must be YYYY-MM-DD"))
			return
		}
		filter.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			httputil.Error(w, errors.BadRequest("to must be YYYY-MM-DD"))
			return
		}
		end := t.AddDate(0, 0, 1)
		filter.To = &end
	}

	entries, total, err := h.auditService.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, meta(page, perPage, total))
}

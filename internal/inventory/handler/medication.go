package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	authrepo "github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// MedicationHandler handles medication endpoints
type MedicationHandler struct {
	service  *service.MedicationService
	auditSvc *service.AuditService
	warnDays int
	logger   *logger.Logger
}

// NewMedicationHandler creates a new medication handler
func NewMedicationHandler(svc *service.MedicationService, auditSvc *service.AuditService, warnDays int, log *logger.Logger) *MedicationHandler {
	return &MedicationHandler{
		service:  svc,
		auditSvc: auditSvc,
		warnDays: warnDays,
		logger:   log,
	}
}

type medicationRequest struct {
	Name             string  `json:"name" validate:"required,min=2,max=200"`
	Description      *string `json:"description"`
	Manufacturer     string  `json:"manufacturer" validate:"required,min=2,max=200"`
	Presentation     string  `json:"presentation" validate:"required,min=1,max=100"`
	ActiveIngredient *string `json:"active_ingredient"`
	LotCode          string  `json:"lot_code" validate:"required,min=1,max=50"`
	ExpiryDate       string  `json:"expiry_date" validate:"required"`
	Stock            int     `json:"stock" validate:"gte=0"`
	MinStock         int     `json:"min_stock" validate:"gte=0"`
	UnitPrice        string  `json:"unit_price" validate:"required"`
}

// List lists medications
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.MedicationFilter{
		Status:       r.URL.Query().Get("status"),
		Search:       r.URL.Query().Get("search"),
		BelowMinOnly: r.URL.Query().Get("below_min") == "true",
	}

	// Inactive listings are restricted to administrators.
	if filter.Status == repository.StatusInactive && httputil.GetUserRole(r.Context()) != authrepo.RoleAdmin {
		httputil.Error(w, errors.Forbidden("listing inactive medications requires admin role"))
		return
	}
	if filter.Status == "" {
		filter.Status = repository.StatusActive
	}

	meds, total, err := h.service.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, meds, meta(page, perPage, total))
}

// Search searches medications by name or active ingredient
func (h *MedicationHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httputil.Error(w, errors.BadRequest("query parameter q is required"))
		return
	}

	page, perPage := pagination(r)
	filter := repository.MedicationFilter{
		Status: repository.StatusActive,
		Search: q,
	}

	meds, total, err := h.service.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, meds, meta(page, perPage, total))
}

// Get gets a medication by ID
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	med, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, med)
}

// Create creates a new medication
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	expiry, err := time.Parse(dateLayout, req.ExpiryDate)
	if err != nil {
		httputil.Error(w, errors.BadRequest("expiry_date must be YYYY-MM-DD"))
		return
	}

	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || price.IsNegative() {
		httputil.Error(w, errors.BadRequest("unit_price must be a non-negative decimal"))
		return
	}

	med, warning, err := h.service.Create(r.Context(), service.CreateMedicationInput{
		Name:             req.Name,
		Description:      req.Description,
		Manufacturer:     req.Manufacturer,
		Presentation:     req.Presentation,
		ActiveIngredient: req.ActiveIngredient,
		LotCode:          req.LotCode,
		ExpiryDate:       expiry,
		Stock:            req.Stock,
		MinStock:         req.MinStock,
		UnitPrice:        price,
	}, h.warnDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if warning != "" {
		httputil.CreatedWithWarning(w, med, warning)
		return
	}
	httputil.Created(w, med)
}

type medicationUpdateRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=2,max=200"`
	Description      *string `json:"description"`
	Manufacturer     *string `json:"manufacturer" validate:"omitempty,min=2,max=200"`
	Presentation     *string `json:"presentation" validate:"omitempty,min=1,max=100"`
	ActiveIngredient *string `json:"active_ingredient"`
	LotCode          *string `json:"lot_code" validate:"omitempty,min=1,max=50"`
	ExpiryDate       *string `json:"expiry_date"`
	MinStock         *int    `json:"min_stock" validate:"omitempty,gte=0"`
	UnitPrice        *string `json:"unit_price"`
}

// Update updates a medication
func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req medicationUpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.UpdateMedicationInput{
		Name:             req.Name,
		Description:      req.Description,
		Manufacturer:     req.Manufacturer,
		Presentation:     req.Presentation,
		ActiveIngredient: req.ActiveIngredient,
		LotCode:          req.LotCode,
		MinStock:         req.MinStock,
	}

	if req.ExpiryDate != nil {
		expiry, err := time.Parse(dateLayout, *req.ExpiryDate)
		if err != nil {
			httputil.Error(w, errors.BadRequest("expiry_date must be YYYY-MM-DD"))
			return
		}
		input.ExpiryDate = &expiry
	}
	if req.UnitPrice != nil {
		price, err := decimal.NewFromString(*req.UnitPrice)
		if err != nil || price.IsNegative() {
			httputil.Error(w, errors.BadRequest("unit_price must be a non-negative decimal"))
			return
		}
		input.UnitPrice = &price
	}

	med, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, med)
}

// Delete deactivates or removes a medication
func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Reactivate returns an inactive medication to service
func (h *MedicationHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	med, err := h.service.Reactivate(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, med)
}

// RecordMovement records an ENTRADA or SALIDA movement
func (h *MedicationHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Type     string `json:"type" validate:"required,oneof=ENTRADA SALIDA"`
		Quantity int    `json:"quantity" validate:"required,gt=0"`
		Reason   string `json:"reason" validate:"required,min=3,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	movement, err := h.service.RecordMovement(r.Context(), id, req.Type, req.Quantity, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, movement)
}

// ListMovements lists the movement history of a medication
func (h *MedicationHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, perPage := pagination(r)

	movements, total, err := h.service.ListMovements(r.Context(), id, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, meta(page, perPage, total))
}

// ListAudit lists the audit history of a medication
func (h *MedicationHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, perPage := pagination(r)

	entries, total, err := h.auditSvc.ListByEntity(r.Context(), service.EntityMedication, id, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, meta(page, perPage, total))
}

// pagination reads page/per_page query parameters with defaults.
func pagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// meta builds the pagination meta block.
func meta(page, perPage int, total int64) *httputil.Meta {
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}
	return &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/internal/sales/repository"
	"github.com/farmatrack/farmatrack-backend/internal/sales/service"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// SaleHandler handles sale endpoints
type SaleHandler struct {
	service *service.SaleService
	logger  *logger.Logger
}

// NewSaleHandler creates a new sale handler
func NewSaleHandler(svc *service.SaleService, log *logger.Logger) *SaleHandler {
	return &SaleHandler{
		service: svc,
		logger:  log,
	}
}

type saleRequest struct {
	CustomerName *string `json:"customer_name"`
	Policy       string  `json:"policy" validate:"omitempty,oneof=FIFO FEFO"`
	Lines        []struct {
		MedicationID string `json:"medication_id" validate:"required,uuid4"`
		Quantity     int    `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"required,min=1,dive"`
}

// List lists sales
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.SaleFilter{
		Status: r.URL.Query().Get("status"),
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

	sales, total, err := h.service.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, sales, meta(page, perPage, total))
}

// Get gets a sale with its lines
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sale)
}

// Create creates a new PENDIENTE sale
func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	lines := make([]service.SaleLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.SaleLineInput{MedicationID: l.MedicationID, Quantity: l.Quantity}
	}

	sale, err := h.service.Create(r.Context(), service.CreateSaleInput{
		CustomerName: req.CustomerName,
		Policy:       ledger.Policy(req.Policy),
		Lines:        lines,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, sale)
}

// Confirm confirms a sale, deducting stock
func (h *SaleHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sale, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sale)
}

// Cancel voids a PENDIENTE sale
func (h *SaleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sale, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sale)
}

// Report returns the sales summary for a period. Defaults to the last 30
// days when no range is given.
func (h *SaleHandler) Report(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("from must be YYYY-MM-DD"))
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			httputil.Error(w, errors.BadRequest("to must be YYYY-MM-DD"))
			return
		}
		to = t
	}

	summary, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}

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

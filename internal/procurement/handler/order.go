package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/service"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// OrderHandler handles purchase order endpoints
type OrderHandler struct {
	service *service.OrderService
	logger  *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  log,
	}
}

type orderLineRequest struct {
	MedicationID string `json:"medication_id" validate:"required,uuid4"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
}

type orderRequest struct {
	SupplierID   string             `json:"supplier_id" validate:"required,uuid4"`
	ExpectedDate string             `json:"expected_date" validate:"required"`
	Notes        *string            `json:"notes"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (req *orderRequest) toInput() (service.CreateOrderInput, error) {
	expected, err := time.Parse(dateLayout, req.ExpectedDate)
	if err != nil {
		return service.CreateOrderInput{}, errors.BadRequest("expected_date must be YYYY-MM-DD")
	}

	lines := make([]service.OrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.OrderLineInput{MedicationID: l.MedicationID, Quantity: l.Quantity}
	}

	return service.CreateOrderInput{
		SupplierID:   req.SupplierID,
		ExpectedDate: expected,
		Notes:        req.Notes,
		Lines:        lines,
	}, nil
}

// List lists purchase orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)

	filter := repository.OrderFilter{
		Status:     r.URL.Query().Get("status"),
		SupplierID: r.URL.Query().Get("supplier_id"),
	}

	orders, total, err := h.service.List(r.Context(), page, perPage, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, orders, meta(page, perPage, total))
}

// Get gets an order with its lines
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// Create creates a new purchase order
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, order)
}

// Update replaces a PENDIENTE order
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req orderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input, err := req.toInput()
	if err != nil {
		httputil.Error(w, err)
		return
	}

	order, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// Send marks an order as sent to the supplier
func (h *OrderHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.service.Send(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, order)
}

// Receive completes an order, recording received quantities
func (h *OrderHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Lines []struct {
			LineID   string `json:"line_id" validate:"required,uuid4"`
			Quantity int    `json:"quantity" validate:"gte=0"`
		} `json:"lines" validate:"dive"`
	}
	// Body is optional: receiving without it takes every line as fully delivered.
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if err := httputil.Validate(&req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	received := make([]service.ReceivedLine, len(req.Lines))
	for i, l := range req.Lines {
		received[i] = service.ReceivedLine{LineID: l.LineID, Quantity: l.Quantity}
	}

	result, err := h.service.Receive(r.Context(), id, received)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

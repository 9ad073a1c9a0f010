package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	invrepo "github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	invservice "github.com/farmatrack/farmatrack-backend/internal/inventory/service"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/events"
	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
)

// EntityOrder is the audit entity name for purchase orders.
const EntityOrder = "orden_compra"

// OrderLineInput is one requested line of an order.
type OrderLineInput struct {
	MedicationID string
	Quantity     int
}

// CreateOrderInput carries the fields of a new purchase order.
type CreateOrderInput struct {
	SupplierID   string
	ExpectedDate time.Time
	Notes        *string
	Lines        []OrderLineInput
}

// ReceivedLine reports the received quantity for one order line.
type ReceivedLine struct {
	LineID   string
	Quantity int
}

// LineDifference is a requested-versus-received discrepancy surfaced by
// reception.
type LineDifference struct {
	LineID         string `json:"line_id"`
	MedicationID   string `json:"medication_id"`
	MedicationName string `json:"medication_name"`
	Requested      int    `json:"requested"`
	Received       int    `json:"received"`
}

// ReceiveResult is the outcome of receiving an order.
type ReceiveResult struct {
	Order       *repository.PurchaseOrder `json:"order"`
	Differences []LineDifference          `json:"differences"`
}

// OrderService handles the purchase order lifecycle:
// PENDIENTE → ENVIADA → RECIBIDA, with RETRASADA flagged on sent orders
// past their expected date.
type OrderService struct {
	db           *database.DB
	orderRepo    *repository.OrderRepository
	supplierRepo *repository.SupplierRepository
	medRepo      *invrepo.MedicationRepository
	movementRepo *invrepo.MovementRepository
	alertSvc     *invservice.AlertService
	auditSvc     *invservice.AuditService
	publisher    *events.Publisher
	logger       *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	db *database.DB,
	orderRepo *repository.OrderRepository,
	supplierRepo *repository.SupplierRepository,
	medRepo *invrepo.MedicationRepository,
	movementRepo *invrepo.MovementRepository,
	alertSvc *invservice.AlertService,
	auditSvc *invservice.AuditService,
	publisher *events.Publisher,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		db:           db,
		orderRepo:    orderRepo,
		supplierRepo: supplierRepo,
		medRepo:      medRepo,
		movementRepo: movementRepo,
		alertSvc:     alertSvc,
		auditSvc:     auditSvc,
		publisher:    publisher,
		logger:       log,
	}
}

// Create registers a new PENDIENTE order. Lines snapshot each medication's
// current lot, expiry and unit price; the estimated total is the sum of
// quantity times unit price.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*repository.PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return nil, errors.BadRequest("order requires at least one line")
	}

	supplier, err := s.supplierRepo.GetByID(ctx, input.SupplierID)
	if err != nil {
		return nil, err
	}
	if supplier.Status != repository.SupplierActive {
		return nil, errors.InvalidState("supplier is inactive")
	}

	lines, total, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	order := &repository.PurchaseOrder{
		SupplierID:     input.SupplierID,
		Status:         repository.OrderPending,
		ExpectedDate:   input.ExpectedDate,
		Notes:          input.Notes,
		EstimatedTotal: total,
		CreatedBy:      httputil.GetUserID(ctx),
		Lines:          lines,
	}

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		number, err := s.orderRepo.NextOrderNumber(ctx, tx, time.Now().Year())
		if err != nil {
			return err
		}
		order.OrderNumber = number
		return s.orderRepo.CreateTx(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordCreate(ctx, EntityOrder, order.ID, map[string]interface{}{
		"order_number": order.OrderNumber, "supplier_id": order.SupplierID, "lines": len(order.Lines),
	})
	s.publisher.PublishOrder(ctx, messaging.EventOrderCreated, order, httputil.GetUserID(ctx))
	return order, nil
}

func (s *OrderService) buildLines(ctx context.Context, inputs []OrderLineInput) ([]*repository.OrderLine, decimal.Decimal, error) {
	lines := make([]*repository.OrderLine, 0, len(inputs))
	total := decimal.Zero

	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, decimal.Zero, errors.BadRequest("line quantity must be greater than zero")
		}

		med, err := s.medRepo.GetByID(ctx, in.MedicationID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if med.Status != invrepo.StatusActive {
			return nil, decimal.Zero, errors.InvalidState(fmt.Sprintf("medication %s is inactive", med.Name))
		}

		lines = append(lines, &repository.OrderLine{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Quantity:       in.Quantity,
			UnitPrice:      med.UnitPrice,
			ExpectedLot:    med.LotCode,
			ExpectedExpiry: med.ExpiryDate,
		})
		total = total.Add(med.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))))
	}
	return lines, total, nil
}

// Get gets an order with its lines
func (s *OrderService) Get(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// List lists orders with pagination
func (s *OrderService) List(ctx context.Context, page, perPage int, filter repository.OrderFilter) ([]*repository.PurchaseOrder, int64, error) {
	return s.orderRepo.List(ctx, page, perPage, filter)
}

// Update replaces a PENDIENTE order's header and lines. Any other state
// rejects with InvalidState.
func (s *OrderService) Update(ctx context.Context, id string, input CreateOrderInput) (*repository.PurchaseOrder, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != repository.OrderPending {
		return nil, errors.InvalidState(fmt.Sprintf("order %s cannot be edited in state %s", order.OrderNumber, order.Status))
	}
	if len(input.Lines) == 0 {
		return nil, errors.BadRequest("order requires at least one line")
	}

	supplier, err := s.supplierRepo.GetByID(ctx, input.SupplierID)
	if err != nil {
		return nil, err
	}
	if supplier.Status != repository.SupplierActive {
		return nil, errors.InvalidState("supplier is inactive")
	}

	lines, total, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return nil, err
	}

	order.SupplierID = input.SupplierID
	order.ExpectedDate = input.ExpectedDate
	order.Notes = input.Notes
	order.EstimatedTotal = total
	order.Lines = lines

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.orderRepo.UpdatePendingTx(ctx, tx, order); err != nil {
			return err
		}
		return s.orderRepo.ReplaceLinesTx(ctx, tx, order.ID, lines)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordAction(ctx, EntityOrder, id, "ACTUALIZAR", map[string]interface{}{
		"lines": len(lines), "estimated_total": total.String(),
	})
	return order, nil
}

// Send transitions a PENDIENTE order to ENVIADA. An order sent after its
// expected date goes straight to RETRASADA with its delay alert raised.
func (s *OrderService) Send(ctx context.Context, id string) (*repository.PurchaseOrder, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != repository.OrderPending {
		return nil, errors.InvalidState(fmt.Sprintf("order %s cannot be sent in state %s", order.OrderNumber, order.Status))
	}

	status := repository.OrderSent
	if ledger.DaysUntil(order.ExpectedDate, time.Now()) < 0 {
		status = repository.OrderDelayed
	}

	if err := s.orderRepo.MarkSent(ctx, id, status); err != nil {
		return nil, err
	}
	order.Status = status

	s.auditSvc.RecordAction(ctx, EntityOrder, id, "ENVIAR", nil)
	s.publisher.PublishOrder(ctx, messaging.EventOrderSent, order, httputil.GetUserID(ctx))

	if status == repository.OrderDelayed {
		supplier, err := s.supplierRepo.GetByID(ctx, order.SupplierID)
		supplierName := order.SupplierID
		if err == nil {
			supplierName = supplier.Name
		}
		s.alertSvc.CheckOrderDelay(ctx, order.ID, order.OrderNumber, supplierName, order.ExpectedDate)
		s.publisher.PublishOrder(ctx, messaging.EventOrderDelayed, order, httputil.GetUserID(ctx))
	}

	return s.orderRepo.GetByID(ctx, id)
}

// Receive completes an ENVIADA or RETRASADA order: records received
// quantities, applies the corresponding ENTRADA movements, and reports any
// requested-versus-received differences. The whole reception commits in
// one transaction.
func (s *OrderService) Receive(ctx context.Context, id string, received []ReceivedLine) (*ReceiveResult, error) {
	byLine := make(map[string]int, len(received))
	for _, rl := range received {
		if rl.Quantity < 0 {
			return nil, errors.BadRequest("received quantity cannot be negative")
		}
		byLine[rl.LineID] = rl.Quantity
	}

	var differences []LineDifference
	var order *repository.PurchaseOrder
	var touched []*invrepo.Medication
	actorID := httputil.GetUserID(ctx)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.Status != repository.OrderSent && order.Status != repository.OrderDelayed {
			return errors.InvalidState(fmt.Sprintf("order %s cannot be received in state %s", order.OrderNumber, order.Status))
		}

		for _, line := range order.Lines {
			qty, ok := byLine[line.ID]
			if !ok {
				qty = line.Quantity
			}

			if err := s.orderRepo.SetLineReceivedTx(ctx, tx, line.ID, qty); err != nil {
				return err
			}
			line.ReceivedQuantity = &qty

			if qty != line.Quantity {
				differences = append(differences, LineDifference{
					LineID:         line.ID,
					MedicationID:   line.MedicationID,
					MedicationName: line.MedicationName,
					Requested:      line.Quantity,
					Received:       qty,
				})
			}

			if qty == 0 {
				continue
			}

			med, err := s.medRepo.GetForUpdate(ctx, tx, line.MedicationID)
			if err != nil {
				return err
			}
			if err := s.medRepo.UpdateStockTx(ctx, tx, med.ID, med.Stock+qty); err != nil {
				return err
			}

			movement := &invrepo.Movement{
				MedicationID: med.ID,
				Type:         invrepo.MovementIn,
				Quantity:     qty,
				Reason:       fmt.Sprintf("Recepcion orden %s", order.OrderNumber),
				PerformedBy:  actorID,
			}
			if err := s.movementRepo.CreateTx(ctx, tx, movement); err != nil {
				return err
			}

			med.Stock += qty
			touched = append(touched, med)
		}

		return s.orderRepo.MarkReceivedTx(ctx, tx, order.ID)
	})
	if err != nil {
		return nil, err
	}

	order.Status = repository.OrderReceived

	s.auditSvc.RecordAction(ctx, EntityOrder, id, "RECIBIR", map[string]interface{}{
		"order_number": order.OrderNumber, "differences": len(differences),
	})
	s.publisher.PublishOrder(ctx, messaging.EventOrderReceived, order, actorID)
	s.alertSvc.ResolveOrderDelay(ctx, order.ID, &actorID)

	for _, med := range touched {
		s.alertSvc.CheckMedication(ctx, med)
	}

	result, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ReceiveResult{Order: result, Differences: differences}, nil
}

// ScanDelayed flags sent orders past their expected date as RETRASADA and
// raises their delay alerts. Run by the scheduler.
func (s *OrderService) ScanDelayed(ctx context.Context) error {
	overdue, err := s.orderRepo.ListOverdueSent(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("delayed order scan: %w", err)
	}

	for _, order := range overdue {
		if err := s.orderRepo.MarkDelayed(ctx, order.ID); err != nil {
			s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to flag delayed order")
			continue
		}
		order.Status = repository.OrderDelayed

		supplierName := order.SupplierID
		if supplier, err := s.supplierRepo.GetByID(ctx, order.SupplierID); err == nil {
			supplierName = supplier.Name
		}

		s.alertSvc.CheckOrderDelay(ctx, order.ID, order.OrderNumber, supplierName, order.ExpectedDate)
		s.publisher.PublishOrder(ctx, messaging.EventOrderDelayed, order, "system")
	}

	if len(overdue) > 0 {
		s.logger.Info().Int("count", len(overdue)).Msg("flagged delayed orders")
	}
	return nil
}

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
	"github.com/farmatrack/farmatrack-backend/internal/sales/events"
	"github.com/farmatrack/farmatrack-backend/internal/sales/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
)

// EntitySale is the audit entity name for sales.
const EntitySale = "venta"

// SaleLineInput is one requested line of a sale.
type SaleLineInput struct {
	MedicationID string
	Quantity     int
}

// CreateSaleInput carries the fields of a new sale.
type CreateSaleInput struct {
	CustomerName *string
	Policy       ledger.Policy
	Lines        []SaleLineInput
}

// SaleService handles the sale lifecycle. A sale is created PENDIENTE with
// no stock impact; confirmation builds a deduction plan over the product's
// eligible lots and applies it atomically, one SALIDA movement per lot.
type SaleService struct {
	db           *database.DB
	saleRepo     *repository.SaleRepository
	medRepo      *invrepo.MedicationRepository
	movementRepo *invrepo.MovementRepository
	alertSvc     *invservice.AlertService
	auditSvc     *invservice.AuditService
	publisher    *events.Publisher
	logger       *logger.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(
	db *database.DB,
	saleRepo *repository.SaleRepository,
	medRepo *invrepo.MedicationRepository,
	movementRepo *invrepo.MovementRepository,
	alertSvc *invservice.AlertService,
	auditSvc *invservice.AuditService,
	publisher *events.Publisher,
	log *logger.Logger,
) *SaleService {
	return &SaleService{
		db:           db,
		saleRepo:     saleRepo,
		medRepo:      medRepo,
		movementRepo: movementRepo,
		alertSvc:     alertSvc,
		auditSvc:     auditSvc,
		publisher:    publisher,
		logger:       log,
	}
}

// Create registers a PENDIENTE sale after checking availability across the
// eligible lots of each requested product. Stock is not touched until
// confirmation.
func (s *SaleService) Create(ctx context.Context, input CreateSaleInput) (*repository.Sale, error) {
	if len(input.Lines) == 0 {
		return nil, errors.BadRequest("sale requires at least one line")
	}

	policy := input.Policy
	if policy == "" {
		policy = ledger.FEFO
	}
	if policy != ledger.FIFO && policy != ledger.FEFO {
		return nil, errors.BadRequest("policy must be FIFO or FEFO")
	}

	lines := make([]*repository.SaleLine, 0, len(input.Lines))
	total := decimal.Zero

	for _, in := range input.Lines {
		if in.Quantity <= 0 {
			return nil, errors.BadRequest("line quantity must be greater than zero")
		}

		med, err := s.medRepo.GetByID(ctx, in.MedicationID)
		if err != nil {
			return nil, err
		}
		if med.Status != invrepo.StatusActive {
			return nil, errors.InvalidState(fmt.Sprintf("medication %s is inactive", med.Name))
		}

		// Availability pre-check across sibling lots. The authoritative
		// plan is rebuilt under row locks at confirmation.
		lots, err := s.medRepo.SiblingLots(ctx, med.Name, med.Presentation, med.Manufacturer)
		if err != nil {
			return nil, err
		}
		if _, err := ledger.BuildPlan(toLedgerLots(lots), in.Quantity, policy, ledger.PlanOptions{}); err != nil {
			return nil, err
		}

		subtotal := med.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
		lines = append(lines, &repository.SaleLine{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Quantity:       in.Quantity,
			UnitPrice:      med.UnitPrice,
			Subtotal:       subtotal,
		})
		total = total.Add(subtotal)
	}

	sale := &repository.Sale{
		Status:       repository.SalePending,
		CustomerName: input.CustomerName,
		Policy:       string(policy),
		Total:        total,
		CreatedBy:    httputil.GetUserID(ctx),
		Lines:        lines,
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		number, err := s.saleRepo.NextSaleNumber(ctx, tx, time.Now().Year())
		if err != nil {
			return err
		}
		sale.SaleNumber = number
		return s.saleRepo.CreateTx(ctx, tx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordCreate(ctx, EntitySale, sale.ID, map[string]interface{}{
		"sale_number": sale.SaleNumber, "lines": len(sale.Lines), "total": sale.Total.String(),
	})
	s.publisher.PublishSale(ctx, messaging.EventSaleCreated, sale, httputil.GetUserID(ctx))
	return sale, nil
}

// Get gets a sale with its lines
func (s *SaleService) Get(ctx context.Context, id string) (*repository.Sale, error) {
	return s.saleRepo.GetByID(ctx, id)
}

// List lists sales with pagination
func (s *SaleService) List(ctx context.Context, page, perPage int, filter repository.SaleFilter) ([]*repository.Sale, int64, error) {
	return s.saleRepo.List(ctx, page, perPage, filter)
}

// Confirm applies a PENDIENTE sale: for each line it locks the product's
// eligible lots, builds the deduction plan, writes one SALIDA movement per
// lot touched and rewrites the sale lines with the lots actually deducted.
// All-or-nothing: any shortfall rolls back the whole sale.
func (s *SaleService) Confirm(ctx context.Context, id string) (*repository.Sale, error) {
	actorID := httputil.GetUserID(ctx)

	var touched []*invrepo.Medication
	var saleNumber string

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		sale, err := s.saleRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sale.Status != repository.SalePending {
			return errors.InvalidState(fmt.Sprintf("sale %s cannot be confirmed in state %s", sale.SaleNumber, sale.Status))
		}
		saleNumber = sale.SaleNumber
		policy := ledger.Policy(sale.Policy)

		var finalLines []*repository.SaleLine
		total := decimal.Zero

		for _, line := range sale.Lines {
			med, err := s.medRepo.GetForUpdate(ctx, tx, line.MedicationID)
			if err != nil {
				return err
			}
			if med.Status != invrepo.StatusActive {
				return errors.InvalidState(fmt.Sprintf("medication %s is inactive", med.Name))
			}

			lots, err := s.medRepo.SiblingLotsForUpdate(ctx, tx, med.Name, med.Presentation, med.Manufacturer)
			if err != nil {
				return err
			}

			plan, err := ledger.BuildPlan(toLedgerLots(lots), line.Quantity, policy, ledger.PlanOptions{})
			if err != nil {
				return err
			}

			byID := make(map[string]*invrepo.Medication, len(lots))
			for _, lot := range lots {
				byID[lot.ID] = lot
			}

			for _, ded := range plan {
				lot := byID[ded.LotID]

				if err := s.medRepo.UpdateStockTx(ctx, tx, ded.LotID, ded.RemainingStock); err != nil {
					return err
				}

				movement := &invrepo.Movement{
					MedicationID: ded.LotID,
					Type:         invrepo.MovementOut,
					Quantity:     ded.Quantity,
					Reason:       fmt.Sprintf("Venta %s", sale.SaleNumber),
					PerformedBy:  actorID,
				}
				if err := s.movementRepo.CreateTx(ctx, tx, movement); err != nil {
					return err
				}

				lotCode := ded.LotCode
				subtotal := lot.UnitPrice.Mul(decimal.NewFromInt(int64(ded.Quantity)))
				finalLines = append(finalLines, &repository.SaleLine{
					MedicationID:   ded.LotID,
					MedicationName: lot.Name,
					LotCode:        &lotCode,
					Quantity:       ded.Quantity,
					UnitPrice:      lot.UnitPrice,
					Subtotal:       subtotal,
				})
				total = total.Add(subtotal)

				lot.Stock = ded.RemainingStock
				touched = append(touched, lot)
			}
		}

		if err := s.saleRepo.ReplaceLinesTx(ctx, tx, sale.ID, finalLines); err != nil {
			return err
		}
		return s.saleRepo.MarkConfirmedTx(ctx, tx, sale.ID, total)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordAction(ctx, EntitySale, id, "CONFIRMAR", map[string]interface{}{
		"sale_number": saleNumber,
	})

	sale, err := s.saleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.PublishSale(ctx, messaging.EventSaleConfirmed, sale, actorID)

	for _, med := range touched {
		s.alertSvc.CheckMedication(ctx, med)
	}
	return sale, nil
}

// Cancel voids a PENDIENTE sale. Confirmed sales cannot be cancelled.
func (s *SaleService) Cancel(ctx context.Context, id string) (*repository.Sale, error) {
	sale, err := s.saleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.Status != repository.SalePending {
		return nil, errors.InvalidState(fmt.Sprintf("sale %s cannot be cancelled in state %s", sale.SaleNumber, sale.Status))
	}

	if err := s.saleRepo.MarkCancelled(ctx, id); err != nil {
		return nil, err
	}
	sale.Status = repository.SaleCancelled

	s.auditSvc.RecordAction(ctx, EntitySale, id, "CANCELAR", map[string]interface{}{
		"sale_number": sale.SaleNumber,
	})
	s.publisher.PublishSale(ctx, messaging.EventSaleCancelled, sale, httputil.GetUserID(ctx))
	return s.saleRepo.GetByID(ctx, id)
}

// Report aggregates confirmed sales in a period.
func (s *SaleService) Report(ctx context.Context, from, to time.Time) (*repository.SalesSummary, error) {
	if to.Before(from) {
		return nil, errors.BadRequest("to must not be before from")
	}
	return s.saleRepo.Summarize(ctx, from, to)
}

func toLedgerLots(meds []*invrepo.Medication) []ledger.Lot {
	lots := make([]ledger.Lot, len(meds))
	for i, m := range meds {
		lots[i] = ledger.Lot{
			ID:         m.ID,
			LotCode:    m.LotCode,
			ExpiryDate: m.ExpiryDate,
			CreatedAt:  m.CreatedAt,
			Stock:      m.Stock,
		}
	}
	return lots
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/events"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/pkg/database"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/httputil"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// EntityMedication is the audit entity name for medications.
const EntityMedication = "medicamento"

// CreateMedicationInput carries the fields of a new medication lot.
type CreateMedicationInput struct {
	Name             string
	Description      *string
	Manufacturer     string
	Presentation     string
	ActiveIngredient *string
	LotCode          string
	ExpiryDate       time.Time
	Stock            int
	MinStock         int
	UnitPrice        decimal.Decimal
}

// UpdateMedicationInput carries updatable fields. Nil means unchanged.
// Stock is deliberately absent: stock only moves through movements.
type UpdateMedicationInput struct {
	Name             *string
	Description      *string
	Manufacturer     *string
	Presentation     *string
	ActiveIngredient *string
	LotCode          *string
	ExpiryDate       *time.Time
	MinStock         *int
	UnitPrice        *decimal.Decimal
}

// MedicationService handles medication lifecycle and stock movements.
type MedicationService struct {
	db           *database.DB
	medRepo      *repository.MedicationRepository
	movementRepo *repository.MovementRepository
	alertSvc     *AlertService
	auditSvc     *AuditService
	publisher    *events.Publisher
	logger       *logger.Logger
}

// NewMedicationService creates a new medication service
func NewMedicationService(
	db *database.DB,
	medRepo *repository.MedicationRepository,
	movementRepo *repository.MovementRepository,
	alertSvc *AlertService,
	auditSvc *AuditService,
	publisher *events.Publisher,
	log *logger.Logger,
) *MedicationService {
	return &MedicationService{
		db:           db,
		medRepo:      medRepo,
		movementRepo: movementRepo,
		alertSvc:     alertSvc,
		auditSvc:     auditSvc,
		publisher:    publisher,
		logger:       log,
	}
}

// Create registers a new medication lot. The expiry must not be in the
// past; an expiry within the warning window is accepted and flagged via the
// returned warning string.
func (s *MedicationService) Create(ctx context.Context, input CreateMedicationInput, warnDays int) (*repository.Medication, string, error) {
	now := time.Now()
	days := ledger.DaysUntil(input.ExpiryDate, now)
	if days < 0 {
		return nil, "", errors.BadRequest("expiry date is in the past")
	}

	searchKey := ledger.SearchKey(input.Name, input.Presentation, input.Manufacturer)
	dup, err := s.medRepo.FindActiveBySearchKey(ctx, searchKey, "")
	if err != nil {
		return nil, "", err
	}
	if dup != nil {
		return nil, "", errors.DuplicateRecord(
			fmt.Sprintf("medication %q (%s, %s) is already registered and active", input.Name, input.Presentation, input.Manufacturer))
	}

	med := &repository.Medication{
		Name:             input.Name,
		Description:      input.Description,
		Manufacturer:     input.Manufacturer,
		Presentation:     input.Presentation,
		ActiveIngredient: input.ActiveIngredient,
		LotCode:          input.LotCode,
		ExpiryDate:       input.ExpiryDate,
		Stock:            input.Stock,
		MinStock:         input.MinStock,
		UnitPrice:        input.UnitPrice,
		SearchKey:        searchKey,
		Status:           repository.StatusActive,
	}

	if err := s.medRepo.Create(ctx, med); err != nil {
		return nil, "", err
	}

	s.auditSvc.RecordCreate(ctx, EntityMedication, med.ID, map[string]interface{}{
		"name": med.Name, "lot_code": med.LotCode, "stock": med.Stock,
	})
	s.publisher.PublishMedicationCreated(ctx, med, httputil.GetUserID(ctx))

	if med.Stock > 0 {
		m := &repository.Movement{
			MedicationID: med.ID,
			Type:         repository.MovementIn,
			Quantity:     med.Stock,
			Reason:       "Registro inicial",
			PerformedBy:  httputil.GetUserID(ctx),
		}
		if err := s.movementRepo.Create(ctx, m); err != nil {
			s.logger.Error().Err(err).Str("medication_id", med.ID).Msg("failed to record initial movement")
		}
	}

	s.alertSvc.CheckMedication(ctx, med)

	warning := ""
	if days <= warnDays {
		warning = fmt.Sprintf("medication expires in %d days (%s)", days, med.ExpiryDate.Format("2006-01-02"))
	}
	return med, warning, nil
}

// Get gets a medication by ID
func (s *MedicationService) Get(ctx context.Context, id string) (*repository.Medication, error) {
	return s.medRepo.GetByID(ctx, id)
}

// List lists medications with pagination and filters
func (s *MedicationService) List(ctx context.Context, page, perPage int, filter repository.MedicationFilter) ([]*repository.Medication, int64, error) {
	return s.medRepo.List(ctx, page, perPage, filter)
}

// Update applies a partial update. Renaming fields that participate in the
// search key re-runs duplicate detection; every changed field gets its own
// audit entry.
func (s *MedicationService) Update(ctx context.Context, id string, input UpdateMedicationInput) (*repository.Medication, error) {
	med, err := s.medRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var changes []FieldChange
	recheckAlerts := false

	if input.Name != nil && *input.Name != med.Name {
		changes = append(changes, FieldChange{Field: "name", Old: med.Name, New: *input.Name})
		med.Name = *input.Name
	}
	if input.Description != nil && !strPtrEqual(input.Description, med.Description) {
		changes = append(changes, FieldChange{Field: "description", Old: strPtrValue(med.Description), New: *input.Description})
		med.Description = input.Description
	}
	if input.Manufacturer != nil && *input.Manufacturer != med.Manufacturer {
		changes = append(changes, FieldChange{Field: "manufacturer", Old: med.Manufacturer, New: *input.Manufacturer})
		med.Manufacturer = *input.Manufacturer
	}
	if input.Presentation != nil && *input.Presentation != med.Presentation {
		changes = append(changes, FieldChange{Field: "presentation", Old: med.Presentation, New: *input.Presentation})
		med.Presentation = *input.Presentation
	}
	if input.ActiveIngredient != nil && !strPtrEqual(input.ActiveIngredient, med.ActiveIngredient) {
		changes = append(changes, FieldChange{Field: "active_ingredient", Old: strPtrValue(med.ActiveIngredient), New: *input.ActiveIngredient})
		med.ActiveIngredient = input.ActiveIngredient
	}
	if input.LotCode != nil && *input.LotCode != med.LotCode {
		changes = append(changes, FieldChange{Field: "lot_code", Old: med.LotCode, New: *input.LotCode})
		med.LotCode = *input.LotCode
	}
	if input.ExpiryDate != nil && !input.ExpiryDate.Equal(med.ExpiryDate) {
		changes = append(changes, FieldChange{Field: "expiry_date", Old: med.ExpiryDate.Format("2006-01-02"), New: input.ExpiryDate.Format("2006-01-02")})
		med.ExpiryDate = *input.ExpiryDate
		recheckAlerts = true
	}
	if input.MinStock != nil && *input.MinStock != med.MinStock {
		changes = append(changes, FieldChange{Field: "min_stock", Old: fmt.Sprint(med.MinStock), New: fmt.Sprint(*input.MinStock)})
		med.MinStock = *input.MinStock
		recheckAlerts = true
	}
	if input.UnitPrice != nil && !input.UnitPrice.Equal(med.UnitPrice) {
		changes = append(changes, FieldChange{Field: "unit_price", Old: med.UnitPrice.String(), New: input.UnitPrice.String()})
		med.UnitPrice = *input.UnitPrice
	}

	if len(changes) == 0 {
		return med, nil
	}

	med.SearchKey = ledger.SearchKey(med.Name, med.Presentation, med.Manufacturer)
	dup, err := s.medRepo.FindActiveBySearchKey(ctx, med.SearchKey, med.ID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, errors.DuplicateRecord(
			fmt.Sprintf("medication %q (%s, %s) is already registered and active", med.Name, med.Presentation, med.Manufacturer))
	}

	if err := s.medRepo.Update(ctx, med); err != nil {
		return nil, err
	}

	s.auditSvc.RecordUpdate(ctx, EntityMedication, med.ID, changes)

	fields := make(map[string]any, len(changes))
	for _, c := range changes {
		fields[c.Field] = c.New
	}
	s.publisher.PublishMedicationUpdated(ctx, med.ID, fields, httputil.GetUserID(ctx))

	if recheckAlerts {
		s.alertSvc.CheckMedication(ctx, med)
	}
	return med, nil
}

// Delete removes a medication. Records with movement history are
// deactivated to preserve traceability; records without are removed
// outright.
func (s *MedicationService) Delete(ctx context.Context, id string) error {
	med, err := s.medRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.movementRepo.CountByMedication(ctx, id)
	if err != nil {
		return err
	}

	if count > 0 {
		if med.Status == repository.StatusInactive {
			return errors.InvalidState("medication is already inactive")
		}
		if err := s.medRepo.SetStatus(ctx, id, repository.StatusInactive); err != nil {
			return err
		}
		med.Status = repository.StatusInactive
		s.auditSvc.RecordAction(ctx, EntityMedication, id, repository.AuditActionDeactivate, nil)
		s.publisher.PublishMedicationStatus(ctx, med, httputil.GetUserID(ctx))
		s.alertSvc.CheckMedication(ctx, med)
		return nil
	}

	if err := s.medRepo.HardDelete(ctx, id); err != nil {
		return err
	}
	s.auditSvc.RecordAction(ctx, EntityMedication, id, repository.AuditActionDelete, map[string]interface{}{
		"name": med.Name, "lot_code": med.LotCode,
	})
	return nil
}

// Reactivate returns an inactive medication to service. Expired lots
// cannot come back.
func (s *MedicationService) Reactivate(ctx context.Context, id string) (*repository.Medication, error) {
	med, err := s.medRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if med.Status == repository.StatusActive {
		return nil, errors.InvalidState("medication is already active")
	}
	if ledger.DaysUntil(med.ExpiryDate, time.Now()) < 0 {
		return nil, errors.InvalidState("cannot reactivate an expired medication")
	}

	dup, err := s.medRepo.FindActiveBySearchKey(ctx, med.SearchKey, med.ID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, errors.DuplicateRecord("an active medication with the same identity already exists")
	}

	if err := s.medRepo.SetStatus(ctx, id, repository.StatusActive); err != nil {
		return nil, err
	}
	med.Status = repository.StatusActive

	s.auditSvc.RecordAction(ctx, EntityMedication, id, repository.AuditActionReactivate, nil)
	s.publisher.PublishMedicationStatus(ctx, med, httputil.GetUserID(ctx))
	s.alertSvc.CheckMedication(ctx, med)
	return med, nil
}

// RecordMovement applies an ENTRADA or SALIDA to a medication. The stock
// update and the movement row commit in one transaction; stock can never
// go negative.
func (s *MedicationService) RecordMovement(ctx context.Context, medicationID, movementType string, quantity int, reason string) (*repository.Movement, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("quantity must be greater than zero")
	}
	if movementType != repository.MovementIn && movementType != repository.MovementOut {
		return nil, errors.BadRequest("movement type must be ENTRADA or SALIDA")
	}

	movement := &repository.Movement{
		MedicationID: medicationID,
		Type:         movementType,
		Quantity:     quantity,
		Reason:       reason,
		PerformedBy:  httputil.GetUserID(ctx),
	}

	var updated *repository.Medication
	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		med, err := s.medRepo.GetForUpdate(ctx, tx, medicationID)
		if err != nil {
			return err
		}
		if med.Status != repository.StatusActive {
			return errors.InvalidState("medication is inactive")
		}
		if ledger.DaysUntil(med.ExpiryDate, time.Now()) < 0 {
			return errors.InvalidState("medication is expired")
		}

		newStock := med.Stock
		switch movementType {
		case repository.MovementIn:
			newStock += quantity
		case repository.MovementOut:
			if quantity > med.Stock {
				return errors.InsufficientStock(quantity, med.Stock)
			}
			newStock -= quantity
		}

		if err := s.medRepo.UpdateStockTx(ctx, tx, medicationID, newStock); err != nil {
			return err
		}
		if err := s.movementRepo.CreateTx(ctx, tx, movement); err != nil {
			return err
		}

		med.Stock = newStock
		updated = med
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.RecordAction(ctx, EntityMedication, medicationID, "MOVIMIENTO_"+movementType, map[string]interface{}{
		"movement_id": movement.ID, "quantity": quantity, "new_stock": updated.Stock, "reason": reason,
	})
	s.publisher.PublishMovementRecorded(ctx, movement, updated.Stock)
	s.alertSvc.CheckMedication(ctx, updated)

	return movement, nil
}

// ListMovements lists the movement history of a medication, newest first.
func (s *MedicationService) ListMovements(ctx context.Context, medicationID string, page, perPage int) ([]*repository.Movement, int64, error) {
	if _, err := s.medRepo.GetByID(ctx, medicationID); err != nil {
		return nil, 0, err
	}
	return s.movementRepo.ListByMedication(ctx, medicationID, page, perPage)
}

// GetStats returns the dashboard counters.
func (s *MedicationService) GetStats(ctx context.Context, expiryWarnDays int) (*repository.Stats, error) {
	return s.medRepo.GetStats(ctx, expiryWarnDays)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

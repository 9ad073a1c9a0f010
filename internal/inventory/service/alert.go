package service

import (
	"context"
	"fmt"
	"time"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/events"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/pkg/errors"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/metrics"
	"github.com/farmatrack/farmatrack-backend/pkg/notify"
)

// AlertService evaluates alert conditions and manages the alert lifecycle.
// A medication carries at most one unresolved alert per axis (stock,
// expiry); evaluation creates, reclassifies or resolves that alert so the
// list always reflects the current condition. Resolved alerts stay as
// history. Notification fan-out happens asynchronously: the service only
// publishes alert events, the notification consumer feeds the role queues.
type AlertService struct {
	alertRepo *repository.AlertRepository
	medRepo   *repository.MedicationRepository
	publisher *events.Publisher
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(
	alertRepo *repository.AlertRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.Publisher,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		alertRepo: alertRepo,
		medRepo:   medRepo,
		publisher: publisher,
		notifier:  notifier,
		metrics:   m,
		logger:    log,
	}
}

// Get gets an alert by ID
func (s *AlertService) Get(ctx context.Context, id string) (*repository.Alert, error) {
	return s.alertRepo.GetByID(ctx, id)
}

// List lists alerts with pagination and filters
func (s *AlertService) List(ctx context.Context, page, perPage int, filter repository.AlertFilter) ([]*repository.Alert, int64, error) {
	return s.alertRepo.List(ctx, page, perPage, filter)
}

// CountUnresolved returns the number of alerts not yet resolved.
func (s *AlertService) CountUnresolved(ctx context.Context) (int64, error) {
	return s.alertRepo.CountUnresolved(ctx)
}

// CheckMedication re-evaluates both alert axes for a medication. Errors are
// logged and swallowed: alert upkeep must never fail the business operation
// that triggered it.
func (s *AlertService) CheckMedication(ctx context.Context, med *repository.Medication) {
	s.checkStockAxis(ctx, med)
	s.checkExpiryAxis(ctx, med)
	s.refreshGauge(ctx)
}

func (s *AlertService) checkStockAxis(ctx context.Context, med *repository.Medication) {
	existing, err := s.alertRepo.FindUnresolvedByMedication(ctx, med.ID, ledger.StockAlertTypes)
	if err != nil {
		s.logger.Error().Err(err).Str("medication_id", med.ID).Msg("stock alert lookup failed")
		return
	}

	cls, needed := ledger.ClassifyStock(med.Stock, med.MinStock)
	if !needed || med.Status != repository.StatusActive {
		if existing != nil {
			s.resolve(ctx, existing, nil)
		}
		return
	}

	message := fmt.Sprintf("%s %s: stock %d (minimo %d)", med.Name, med.Presentation, med.Stock, med.MinStock)
	if med.Stock == 0 {
		message = fmt.Sprintf("%s %s: stock agotado", med.Name, med.Presentation)
	}

	stock := med.Stock
	minStock := med.MinStock

	if existing == nil {
		alert := &repository.Alert{
			Type:         cls.Type,
			Priority:     cls.Priority,
			Message:      message,
			MedicationID: &med.ID,
			StockAtAlert: &stock,
			MinStock:     &minStock,
			LotCode:      &med.LotCode,
		}
		s.create(ctx, alert)
		return
	}

	// Same tier or not, message and stock snapshot track the current
	// state; only a tier change re-notifies.
	tierChanged := existing.Type != cls.Type
	if !tierChanged && existing.Message == message {
		return
	}
	if err := s.alertRepo.Reclassify(ctx, existing.ID, cls.Type, cls.Priority, message, &stock); err != nil {
		s.logger.Error().Err(err).Str("alert_id", existing.ID).Msg("alert reclassify failed")
		return
	}
	existing.Type = cls.Type
	existing.Priority = cls.Priority
	existing.Message = message
	existing.StockAtAlert = &stock
	if tierChanged {
		s.publisher.PublishAlertGenerated(ctx, existing)
	}
}

func (s *AlertService) checkExpiryAxis(ctx context.Context, med *repository.Medication) {
	existing, err := s.alertRepo.FindUnresolvedByMedication(ctx, med.ID, ledger.ExpiryAlertTypes)
	if err != nil {
		s.logger.Error().Err(err).Str("medication_id", med.ID).Msg("expiry alert lookup failed")
		return
	}

	cls, needed := ledger.ClassifyExpiry(med.ExpiryDate, time.Now())
	if !needed || med.Status != repository.StatusActive {
		if existing != nil {
			s.resolve(ctx, existing, nil)
		}
		return
	}

	days := ledger.DaysUntil(med.ExpiryDate, time.Now())
	var message string
	if days < 0 {
		message = fmt.Sprintf("%s lote %s vencio el %s", med.Name, med.LotCode, med.ExpiryDate.Format("2006-01-02"))
	} else {
		message = fmt.Sprintf("%s lote %s vence en %d dias (%s)", med.Name, med.LotCode, days, med.ExpiryDate.Format("2006-01-02"))
	}

	if existing == nil {
		expiry := med.ExpiryDate
		alert := &repository.Alert{
			Type:         cls.Type,
			Priority:     cls.Priority,
			Message:      message,
			MedicationID: &med.ID,
			ExpiryDate:   &expiry,
			LotCode:      &med.LotCode,
		}
		s.create(ctx, alert)
		return
	}

	tierChanged := existing.Type != cls.Type
	if !tierChanged && existing.Message == message {
		return
	}
	if err := s.alertRepo.Reclassify(ctx, existing.ID, cls.Type, cls.Priority, message, nil); err != nil {
		s.logger.Error().Err(err).Str("alert_id", existing.ID).Msg("alert reclassify failed")
		return
	}
	existing.Type = cls.Type
	existing.Priority = cls.Priority
	existing.Message = message
	if tierChanged {
		s.publisher.PublishAlertGenerated(ctx, existing)
	}
}

// CheckOrderDelay raises the delay alert for a purchase order that is past
// its expected date, deduplicating against an existing unresolved one.
func (s *AlertService) CheckOrderDelay(ctx context.Context, orderID, orderNumber, supplierName string, expectedDate time.Time) {
	existing, err := s.alertRepo.FindUnresolvedByOrder(ctx, orderID, ledger.AlertOrderDelayed)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("order delay alert lookup failed")
		return
	}
	if existing != nil {
		return
	}

	daysLate := -ledger.DaysUntil(expectedDate, time.Now())
	alert := &repository.Alert{
		Type:     ledger.AlertOrderDelayed,
		Priority: ledger.PriorityHigh,
		Message: fmt.Sprintf("orden %s (%s) retrasada %d dias (esperada %s)",
			orderNumber, supplierName, daysLate, expectedDate.Format("2006-01-02")),
		OrderID: &orderID,
	}
	s.create(ctx, alert)
	s.refreshGauge(ctx)
}

// ResolveOrderDelay resolves the delay alert of an order on reception.
func (s *AlertService) ResolveOrderDelay(ctx context.Context, orderID string, resolvedBy *string) {
	existing, err := s.alertRepo.FindUnresolvedByOrder(ctx, orderID, ledger.AlertOrderDelayed)
	if err != nil || existing == nil {
		return
	}
	s.resolve(ctx, existing, resolvedBy)
	s.refreshGauge(ctx)
}

// SetState applies a user-driven state transition. ACTIVA may move to
// PENDIENTE_REPOSICION or RESUELTA; PENDIENTE_REPOSICION only to RESUELTA.
func (s *AlertService) SetState(ctx context.Context, id, state, actorID string) (*repository.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch state {
	case repository.AlertStatePendingRestock:
		if alert.State != repository.AlertStateActive {
			return nil, errors.InvalidState(fmt.Sprintf("cannot move alert from %s to %s", alert.State, state))
		}
		if err := s.alertRepo.SetState(ctx, id, state); err != nil {
			return nil, err
		}
	case repository.AlertStateResolved:
		if alert.State == repository.AlertStateResolved {
			return nil, errors.InvalidState("alert is already resolved")
		}
		resolvedBy := &actorID
		if actorID == "" {
			resolvedBy = nil
		}
		s.resolve(ctx, alert, resolvedBy)
		s.refreshGauge(ctx)
	default:
		return nil, errors.BadRequest("unknown alert state: " + state)
	}

	return s.alertRepo.GetByID(ctx, id)
}

// ScanAll re-evaluates the alerts of every active medication. Delayed-order
// detection is driven separately by the procurement service.
func (s *AlertService) ScanAll(ctx context.Context) error {
	meds, err := s.medRepo.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("alert scan: get active medications: %w", err)
	}

	for _, med := range meds {
		s.checkStockAxis(ctx, med)
		s.checkExpiryAxis(ctx, med)
	}

	s.refreshGauge(ctx)
	s.logger.Info().Int("medications", len(meds)).Msg("alert scan completed")
	return nil
}

// PendingNotifications returns the queued notifications for a role.
func (s *AlertService) PendingNotifications(ctx context.Context, role string) ([]notify.Notification, error) {
	return s.notifier.Pending(ctx, role)
}

func (s *AlertService) create(ctx context.Context, alert *repository.Alert) {
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("type", alert.Type).Msg("failed to create alert")
		return
	}

	s.publisher.PublishAlertGenerated(ctx, alert)
}

func (s *AlertService) resolve(ctx context.Context, alert *repository.Alert, resolvedBy *string) {
	if err := s.alertRepo.Resolve(ctx, alert.ID, resolvedBy); err != nil {
		s.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to resolve alert")
		return
	}

	s.publisher.PublishAlertResolved(ctx, alert.ID, alert.Type, resolvedBy)
}

func (s *AlertService) refreshGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	count, err := s.alertRepo.CountUnresolved(ctx)
	if err != nil {
		return
	}
	s.metrics.SetActiveAlerts(int(count))
}


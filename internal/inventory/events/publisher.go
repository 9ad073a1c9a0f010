package events

import (
	"context"

	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
)

// Publisher publishes inventory domain events. A nil Publisher is a no-op,
// so the service layer can run without a broker in degraded mode.
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates a new inventory event publisher
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMedicationCreated publishes a medication created event
func (p *Publisher) PublishMedicationCreated(ctx context.Context, med *repository.Medication, createdBy string) {
	if p == nil {
		return
	}

	data := messaging.MedicationCreatedEvent{
		MedicationID: med.ID,
		Name:         med.Name,
		Manufacturer: med.Manufacturer,
		Presentation: med.Presentation,
		LotCode:      med.LotCode,
		ExpiryDate:   med.ExpiryDate,
		Stock:        med.Stock,
		CreatedBy:    createdBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicationCreated, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", med.ID).Msg("failed to publish medication created event")
	}
}

// PublishMedicationUpdated publishes a medication updated event
func (p *Publisher) PublishMedicationUpdated(ctx context.Context, medicationID string, fields map[string]any, updatedBy string) {
	if p == nil {
		return
	}

	data := messaging.MedicationUpdatedEvent{
		MedicationID: medicationID,
		Fields:       fields,
		UpdatedBy:    updatedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMedicationUpdated, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", medicationID).Msg("failed to publish medication updated event")
	}
}

// PublishMedicationStatus publishes a deactivated or reactivated event
func (p *Publisher) PublishMedicationStatus(ctx context.Context, med *repository.Medication, changedBy string) {
	if p == nil {
		return
	}

	eventType := messaging.EventMedicationDeactivated
	if med.Status == repository.StatusActive {
		eventType = messaging.EventMedicationReactivated
	}

	data := messaging.MedicationStatusEvent{
		MedicationID: med.ID,
		Name:         med.Name,
		Status:       med.Status,
		ChangedBy:    changedBy,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", med.ID).Msg("failed to publish medication status event")
	}
}

// PublishMovementRecorded publishes a stock movement event
func (p *Publisher) PublishMovementRecorded(ctx context.Context, m *repository.Movement, newStock int) {
	if p == nil {
		return
	}

	data := messaging.MovementRecordedEvent{
		MovementID:   m.ID,
		MedicationID: m.MedicationID,
		Type:         m.Type,
		Quantity:     m.Quantity,
		NewStock:     newStock,
		Reason:       m.Reason,
		PerformedBy:  m.PerformedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", m.ID).Msg("failed to publish movement recorded event")
	}
}

// PublishAlertGenerated publishes an alert generated event
func (p *Publisher) PublishAlertGenerated(ctx context.Context, alert *repository.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertGeneratedEvent{
		AlertID:   alert.ID,
		AlertType: alert.Type,
		Priority:  alert.Priority,
		Message:   alert.Message,
	}
	if alert.MedicationID != nil {
		data.MedicationID = *alert.MedicationID
	}
	if alert.OrderID != nil {
		data.OrderID = *alert.OrderID
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertGenerated, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert generated event")
	}
}

// PublishAlertResolved publishes an alert resolved event
func (p *Publisher) PublishAlertResolved(ctx context.Context, alertID, alertType string, resolvedBy *string) {
	if p == nil {
		return
	}

	data := messaging.AlertResolvedEvent{
		AlertID:   alertID,
		AlertType: alertType,
	}
	if resolvedBy != nil {
		data.ResolvedBy = *resolvedBy
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertResolved, data); err != nil {
		p.logger.Error().Err(err).Str("alert_id", alertID).Msg("failed to publish alert resolved event")
	}
}

// PublishAuditLogCreated publishes an audit log created event
func (p *Publisher) PublishAuditLogCreated(ctx context.Context, entry *repository.AuditLog) {
	if p == nil {
		return
	}

	data := messaging.AuditLogCreatedEvent{
		LogID:    entry.ID,
		Action:   entry.Action,
		Entity:   entry.Entity,
		EntityID: entry.EntityID,
	}
	if entry.UserID != nil {
		data.UserID = *entry.UserID
	}
	if entry.Field != nil {
		data.Field = *entry.Field
	}

	if err := p.publisher.Publish(ctx, messaging.EventAuditLogCreated, data); err != nil {
		p.logger.Error().Err(err).Str("log_id", entry.ID).Msg("failed to publish audit log created event")
	}
}

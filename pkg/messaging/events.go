package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Medication events
	EventMedicationCreated     = "medication.created"
	EventMedicationUpdated     = "medication.updated"
	EventMedicationDeactivated = "medication.deactivated"
	EventMedicationReactivated = "medication.reactivated"
	EventMovementRecorded      = "medication.movement.recorded"

	// Alert events
	EventAlertGenerated = "alert.generated"
	EventAlertResolved  = "alert.resolved"

	// Sale events
	EventSaleCreated   = "sale.created"
	EventSaleConfirmed = "sale.confirmed"
	EventSaleCancelled = "sale.cancelled"

	// Purchase order events
	EventOrderCreated  = "order.created"
	EventOrderSent     = "order.sent"
	EventOrderReceived = "order.received"
	EventOrderDelayed  = "order.delayed"

	// Audit events
	EventAuditLogCreated = "audit.log.created"
)

// ExchangeEvents is the topic exchange all domain events are published to.
const ExchangeEvents = "farmatrack.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Medication Events

// MedicationCreatedEvent is published when a medication is created
type MedicationCreatedEvent struct {
	MedicationID string    `json:"medication_id"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
	Presentation string    `json:"presentation"`
	LotCode      string    `json:"lot_code"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Stock        int       `json:"stock"`
	CreatedBy    string    `json:"created_by"`
}

// MedicationUpdatedEvent is published when a medication is updated
type MedicationUpdatedEvent struct {
	MedicationID string         `json:"medication_id"`
	Fields       map[string]any `json:"fields"`
	UpdatedBy    string         `json:"updated_by"`
}

// MedicationStatusEvent is published when a medication is deactivated or reactivated
type MedicationStatusEvent struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	ChangedBy    string `json:"changed_by"`
}

// MovementRecordedEvent is published when a stock movement is recorded
type MovementRecordedEvent struct {
	MovementID   string `json:"movement_id"`
	MedicationID string `json:"medication_id"`
	Type         string `json:"type"`
	Quantity     int    `json:"quantity"`
	NewStock     int    `json:"new_stock"`
	Reason       string `json:"reason"`
	PerformedBy  string `json:"performed_by"`
}

// Alert Events

// AlertGeneratedEvent is published when an alert is created or escalated
type AlertGeneratedEvent struct {
	AlertID      string `json:"alert_id"`
	AlertType    string `json:"alert_type"`
	Priority     string `json:"priority"`
	Message      string `json:"message"`
	MedicationID string `json:"medication_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
}

// AlertResolvedEvent is published when an alert condition clears
type AlertResolvedEvent struct {
	AlertID    string `json:"alert_id"`
	AlertType  string `json:"alert_type"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// Sale Events

// SaleEvent is published on sale lifecycle transitions
type SaleEvent struct {
	SaleID     string `json:"sale_id"`
	SaleNumber string `json:"sale_number"`
	Status     string `json:"status"`
	Total      string `json:"total"`
	Lines      int    `json:"lines"`
	ActorID    string `json:"actor_id"`
}

// Order Events

// OrderEvent is published on purchase order lifecycle transitions
type OrderEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	SupplierID  string `json:"supplier_id"`
	Status      string `json:"status"`
	ActorID     string `json:"actor_id"`
}

// Audit Events

// AuditLogCreatedEvent is published when an audit log entry is created
type AuditLogCreatedEvent struct {
	LogID    string `json:"log_id"`
	UserID   string `json:"user_id"`
	Action   string `json:"action"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Field    string `json:"field,omitempty"`
}

package consumers

import (
	"context"

	authrepo "github.com/farmatrack/farmatrack-backend/internal/auth/repository"
	"github.com/farmatrack/farmatrack-backend/internal/inventory/repository"
	"github.com/farmatrack/farmatrack-backend/internal/ledger"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
	"github.com/farmatrack/farmatrack-backend/pkg/notify"
)

// Roles whose notification queues receive alerts of each kind.
var (
	stockAlertRoles  = []string{authrepo.RoleAdmin, authrepo.RoleCompras}
	expiryAlertRoles = []string{authrepo.RoleAdmin, authrepo.RoleFarmaceutico}
	orderAlertRoles  = []string{authrepo.RoleAdmin, authrepo.RoleCompras}
)

func rolesFor(alertType string) []string {
	switch alertType {
	case ledger.AlertOrderDelayed:
		return orderAlertRoles
	case ledger.AlertExpired, ledger.AlertExpiryImminent, ledger.AlertExpiryNear:
		return expiryAlertRoles
	default:
		return stockAlertRoles
	}
}

// AlertEventConsumer feeds the per-role notification queues from alert
// events. Running the fan-out off the broker instead of inline gives the
// pushes retry and dead-letter semantics.
type AlertEventConsumer struct {
	consumer  *messaging.Consumer
	alertRepo *repository.AlertRepository
	notifier  *notify.Notifier
	logger    *logger.Logger
}

// NewAlertEventConsumer creates a new alert event consumer
func NewAlertEventConsumer(rmq *messaging.RabbitMQ, alertRepo *repository.AlertRepository, notifier *notify.Notifier, log *logger.Logger) (*AlertEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "farmatrack.notifications", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeEvents, "alert.#"); err != nil {
		return nil, err
	}

	c := &AlertEventConsumer{
		consumer:  consumer,
		alertRepo: alertRepo,
		notifier:  notifier,
		logger:    log,
	}

	consumer.RegisterHandler(messaging.EventAlertGenerated, c.handleAlertGenerated)
	consumer.RegisterHandler(messaging.EventAlertResolved, c.handleAlertResolved)

	return c, nil
}

// Start starts consuming messages
func (c *AlertEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *AlertEventConsumer) handleAlertGenerated(ctx context.Context, event *messaging.Event) error {
	var data messaging.AlertGeneratedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	err := c.notifier.Push(ctx, rolesFor(data.AlertType), notify.Notification{
		AlertID:   data.AlertID,
		AlertType: data.AlertType,
		Priority:  data.Priority,
		Message:   data.Message,
		CreatedAt: event.Timestamp,
	})
	if err != nil {
		return err
	}

	if c.notifier.Available() {
		if err := c.alertRepo.MarkNotified(ctx, data.AlertID); err != nil {
			c.logger.Error().Err(err).Str("alert_id", data.AlertID).Msg("failed to mark alert notified")
		}
	}

	return nil
}

func (c *AlertEventConsumer) handleAlertResolved(ctx context.Context, event *messaging.Event) error {
	var data messaging.AlertResolvedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	return c.notifier.Remove(ctx, rolesFor(data.AlertType), data.AlertID)
}

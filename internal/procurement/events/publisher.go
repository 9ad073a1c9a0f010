package events

import (
	"context"

	"github.com/farmatrack/farmatrack-backend/internal/procurement/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
)

// Publisher publishes purchase order events. A nil Publisher is a no-op.
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates a new procurement event publisher
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeEvents, "procurement-service", log)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishOrder publishes a lifecycle event for a purchase order.
func (p *Publisher) PublishOrder(ctx context.Context, eventType string, order *repository.PurchaseOrder, actorID string) {
	if p == nil {
		return
	}

	data := messaging.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		SupplierID:  order.SupplierID,
		Status:      order.Status,
		ActorID:     actorID,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to publish order event")
	}
}

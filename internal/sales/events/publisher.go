package events

import (
	"context"

	"github.com/farmatrack/farmatrack-backend/internal/sales/repository"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
	"github.com/farmatrack/farmatrack-backend/pkg/messaging"
)

// Publisher publishes sale events. A nil Publisher is a no-op.
type Publisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPublisher creates a new sales event publisher
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeEvents, "sales-service", log)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishSale publishes a lifecycle event for a sale.
func (p *Publisher) PublishSale(ctx context.Context, eventType string, sale *repository.Sale, actorID string) {
	if p == nil {
		return
	}

	data := messaging.SaleEvent{
		SaleID:     sale.ID,
		SaleNumber: sale.SaleNumber,
		Status:     sale.Status,
		Total:      sale.Total.String(),
		Lines:      len(sale.Lines),
		ActorID:    actorID,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("sale_id", sale.ID).Msg("failed to publish sale event")
	}
}

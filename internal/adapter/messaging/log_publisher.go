package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt domain.OrderEvent) error {
	p.logger.Info("order event",
		zap.String("eventId", evt.EventID),
		zap.String("eventType", evt.Type),
		zap.String("orderId", evt.OrderID),
		zap.String("status", string(evt.Status)),
		zap.Time("occurredAt", evt.OccurredAt))
	return nil
}

var _ port.EventPublisher = (*LogPublisher)(nil)

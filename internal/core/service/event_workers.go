package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/port"
)

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
	publishBackoff  = 100 * time.Millisecond
)

// StartEventWorkers drains queue with n workers publishing to pub. The
// returned func blocks until the queue is closed and fully drained.
func StartEventWorkers(queue <-chan domain.OrderEvent, pub port.EventPublisher, n int, logger *zap.Logger) (wait func()) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			eventWorkerLoop(id, queue, pub, logger)
		}(i)
	}
	logger.Info("started event workers", zap.Int("count", n))
	return wg.Wait
}

func eventWorkerLoop(id int, queue <-chan domain.OrderEvent, pub port.EventPublisher, logger *zap.Logger) {
	for evt := range queue {
		var err error
		for attempt := 1; attempt <= publishAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			err = pub.Publish(ctx, evt)
			cancel()
			if err == nil {
				break
			}
			time.Sleep(time.Duration(attempt) * publishBackoff)
		}

		if err != nil {
			logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("eventId", evt.EventID),
				zap.String("eventType", evt.Type),
				zap.String("orderId", evt.OrderID),
				zap.Error(err))
			continue
		}
		logger.Debug("published event",
			zap.Int("worker", id), zap.String("eventType", evt.Type), zap.String("orderId", evt.OrderID))
	}
}

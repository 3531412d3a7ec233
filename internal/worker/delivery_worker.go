package worker

import (
	"context"
	"sync/atomic"
	"time"

	"readiculous/internal/logger"
	"readiculous/internal/notify/local"

	"go.uber.org/zap"
)

// DeliveryWorker забирает сработавшие уведомления у локального планировщика и отдаёт их в sink
type DeliveryWorker struct {
	source    <-chan local.Fired
	sink      func(local.Fired)
	delivered atomic.Uint64
}

func NewDeliveryWorker(source <-chan local.Fired, sink func(local.Fired)) *DeliveryWorker {
	return &DeliveryWorker{source: source, sink: sink}
}

func (w *DeliveryWorker) Start(ctx context.Context) error {
	logger.Info("Worker: Доставка уведомлений запущена")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker: Доставка уведомлений останавливается", zap.Uint64("delivered", w.delivered.Load()))
			return nil
		case fired, ok := <-w.source:
			if !ok {
				logger.Info("Worker: Источник уведомлений закрыт", zap.Uint64("delivered", w.delivered.Load()))
				return nil
			}
			w.deliver(fired)
		}
	}
}

func (w *DeliveryWorker) deliver(fired local.Fired) {
	logger.Info("Worker: Уведомление доставлено",
		zap.String("notification_id", fired.ID),
		zap.String("title", fired.Notification.Title),
		zap.String("body", fired.Notification.Body),
		zap.Duration("late", fired.FiredAt.Sub(fired.FireAt).Round(time.Millisecond)),
	)
	if w.sink != nil {
		w.sink(fired)
	}
	w.delivered.Add(1)
}

func (w *DeliveryWorker) Delivered() uint64 {
	return w.delivered.Load()
}

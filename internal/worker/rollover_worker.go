package worker

import (
	"context"
	"time"

	"readiculous/internal/dashboard"
	"readiculous/internal/logger"

	"go.uber.org/zap"
)

// Refresher - часть агрегатора, нужная воркеру смены дня
type Refresher interface {
	Stale() []string
	Refresh(ctx context.Context, owner string) (*dashboard.Snapshot, error)
}

// RolloverWorker пересчитывает снимки, посчитанные вчера, чтобы "сегодня" сдвигалось без действий пользователя
type RolloverWorker struct {
	dashboard Refresher
	interval  time.Duration
	batchSize int
}

func NewRolloverWorker(dashboard Refresher, interval *time.Duration, batchSize *int) *RolloverWorker {
	var intervalToSet time.Duration
	if interval == nil || *interval <= 0 {
		intervalToSet = time.Minute
	} else {
		intervalToSet = *interval
	}

	var batchToSet int
	if batchSize == nil || *batchSize <= 0 {
		batchToSet = 100
	} else {
		batchToSet = *batchSize
	}
	return &RolloverWorker{
		dashboard: dashboard,
		interval:  intervalToSet,
		batchSize: batchToSet,
	}
}

func (w *RolloverWorker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Проверка смены дня останавливается")
			return nil
		}
	}
}

// Check обновляет не больше batchSize устаревших снимков и возвращает число обновлённых
func (w *RolloverWorker) Check(ctx context.Context) int {
	start := time.Now()

	stale := w.dashboard.Stale()
	if len(stale) == 0 {
		return 0
	}

	refreshed := 0
	for _, owner := range stale {
		if refreshed >= w.batchSize || ctx.Err() != nil {
			break
		}
		if _, err := w.dashboard.Refresh(ctx, owner); err != nil {
			logger.Warn("Worker: Ошибка пересчёта снимка", zap.String("owner_id", owner), zap.Error(err))
			continue
		}
		refreshed++
	}

	logger.Info(
		"Worker: Завершение пересчёта после смены дня",
		zap.Duration("ms", time.Since(start)),
		zap.Int("stale", len(stale)),
		zap.Int("refreshed", refreshed),
	)
	return refreshed
}

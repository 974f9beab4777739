package worker

import (
	"context"
	"fmt"

	"retail-analytics/internal/broker"
	"retail-analytics/internal/models"
	"retail-analytics/internal/util"

	"go.uber.org/zap"
)

// DashboardCachePrefix prefixes every cached dashboard view
const DashboardCachePrefix = "dashboard:"

// Consumer is the message source the worker drains
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CacheInvalidator drops cached entries by key prefix
type CacheInvalidator interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// CacheWorker clears cached dashboard views once a pipeline run has reloaded
// the store
type CacheWorker struct {
	consumer     Consumer
	eventHandler *broker.EventHandler
	cache        CacheInvalidator
	logger       *zap.Logger
}

// NewCacheWorker creates a new cache worker
func NewCacheWorker(consumer Consumer, cache CacheInvalidator) *CacheWorker {
	w := &CacheWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		cache:        cache,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnRunCompleted(w.HandleRunCompleted)
	return w
}

// HandleRunCompleted invalidates all dashboard cache entries
func (w *CacheWorker) HandleRunCompleted(ctx context.Context, event *models.RunCompletedEvent) error {
	n, err := w.cache.DeleteByPrefix(ctx, DashboardCachePrefix)
	if err != nil {
		return fmt.Errorf("failed to invalidate dashboard cache: %w", err)
	}

	w.logger.Info("Dashboard cache invalidated",
		zap.String("run_id", event.RunID),
		zap.Int("keys", n))
	return nil
}

// Start starts the worker
func (w *CacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CacheWorker) Stop() error {
	w.logger.Info("Stopping cache worker")
	return w.consumer.Close()
}

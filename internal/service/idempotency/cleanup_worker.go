// Package idempotency защищает оформление заказа от повторов по Idempotency-Key
// и чистит устаревшие записи.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultOutboxRetention  = 24 * time.Hour

	kindIdempotency = "idempotency"
	kindOutbox      = "outbox"
)

// OutboxPurger удаляет доставленные события outbox.
type OutboxPurger interface {
	PurgeSent(ctx context.Context, before time.Time) (int, error)
}

// cleanupTask удаляет записи одного вида, устаревшие к моменту now.
type cleanupTask struct {
	kind string
	run  func(ctx context.Context, now time.Time) (int, error)
}

// CleanupWorker периодически удаляет просроченные ключи идемпотентности
// и, если подключён purger, доставленные события outbox.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	outbox    OutboxPurger
	retention time.Duration
	metrics   *metrics.CleanupMetrics
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker. Нулевые значения игнорируются.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между прогонами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт размер одной порции удаления ключей.
func WithBatchSize(n int) CleanupOption {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithOutboxRetention включает удаление доставленных событий outbox старше retention.
func WithOutboxRetention(purger OutboxPurger, retention time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		w.outbox = purger
		if retention > 0 {
			w.retention = retention
		}
	}
}

// WithCleanupMetrics подключает метрики очистки.
func WithCleanupMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithCleanupClock подменяет источник времени.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewCleanupWorker создаёт воркер очистки; repo может быть nil, если чистится только outbox.
func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		retention: defaultOutboxRetention,
		logger:    log.WithField("component", "cleanup-worker"),
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *CleanupWorker) tasks() []cleanupTask {
	var tasks []cleanupTask
	if w.repo != nil {
		tasks = append(tasks, cleanupTask{kind: kindIdempotency, run: w.DeleteExpired})
	}
	if w.outbox != nil {
		tasks = append(tasks, cleanupTask{kind: kindOutbox, run: func(ctx context.Context, now time.Time) (int, error) {
			return w.outbox.PurgeSent(ctx, now.Add(-w.retention))
		}})
	}
	return tasks
}

// Run чистит сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	tasks := w.tasks()
	if len(tasks) == 0 {
		w.logger.Warn("cleanup worker disabled: nothing to clean")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.runOnce(ctx, tasks)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce выполняет задачи параллельно: таблицы независимы, и сбой одной
// не отменяет другую.
func (w *CleanupWorker) runOnce(ctx context.Context, tasks []cleanupTask) {
	now := w.now()
	var g errgroup.Group
	for _, task := range tasks {
		g.Go(func() error {
			deleted, err := task.run(ctx, now)
			w.record(task.kind, deleted, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *CleanupWorker) record(kind string, deleted int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	w.metrics.RecordRun(kind, deleted, err)

	entry := w.logger.WithFields(log.Fields{"kind": kind, "deleted": deleted})
	switch {
	case err != nil:
		entry.WithError(err).Warn("cleanup run failed")
	case deleted > 0:
		entry.Info("cleanup completed")
	}
}

// DeleteExpired удаляет ключи с ttl <= before порциями batchSize, пока порция полная.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
}

// Package reconcile runs the background loop that retries queued profile
// writes.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/account-provisioner/pkg/provisioning"
)

// Defaults applied when the caller leaves a setting unset or non-positive.
const (
	DefaultBatchSize = 50
	DefaultInterval  = time.Minute
)

// Reconciler retries queued profile writes.
type Reconciler interface {
	ReconcileProfiles(ctx context.Context, limit int) (provisioning.ReconcileReport, error)
}

// QueueCounter reports how many profile writes are still queued.
type QueueCounter interface {
	Count(ctx context.Context) (int, error)
}

// Gauge receives the queue depth after each cycle.
type Gauge interface {
	SetPendingProfiles(n int)
}

// Worker calls the reconciler on a fixed interval.
type Worker struct {
	reconciler Reconciler
	queue      QueueCounter
	gauge      Gauge
	logger     *slog.Logger
	batchSize  int
}

// Config holds the worker's collaborators. Queue and Gauge are optional;
// the queue depth is only reported when both are set.
type Config struct {
	Reconciler Reconciler
	Queue      QueueCounter
	Gauge      Gauge
	Logger     *slog.Logger
	BatchSize  int
}

// NewWorker creates a Worker.
func NewWorker(cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		reconciler: cfg.Reconciler,
		queue:      cfg.Queue,
		gauge:      cfg.Gauge,
		logger:     cfg.Logger,
		batchSize:  cfg.BatchSize,
	}
}

// Start runs one cycle immediately and then one per interval until ctx is
// cancelled. A non-positive interval falls back to DefaultInterval.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		w.logger.Warn("invalid reconcile interval, using default",
			"interval", interval,
			"default", DefaultInterval,
		)
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("profile reconciler started",
		"interval", interval,
		"batch_size", w.batchSize,
	)

	w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("profile reconciler stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("profile reconciliation cycle failed", "error", err)
	}
}

// RunOnce retries one batch of due profile writes.
func (w *Worker) RunOnce(ctx context.Context) (provisioning.ReconcileReport, error) {
	start := time.Now()

	report, err := w.reconciler.ReconcileProfiles(ctx, w.batchSize)
	w.reportDepth(ctx)
	if err != nil {
		return report, err
	}

	if report.Attempted > 0 {
		w.logger.Info("profile reconciliation cycle completed",
			"attempted", report.Attempted,
			"reconciled", report.Reconciled,
			"rescheduled", report.Rescheduled,
			"abandoned", report.Abandoned,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return report, nil
}

func (w *Worker) reportDepth(ctx context.Context) {
	if w.queue == nil || w.gauge == nil {
		return
	}
	n, err := w.queue.Count(ctx)
	if err != nil {
		w.logger.Warn("failed to count queued profile writes", "error", err)
		return
	}
	w.gauge.SetPendingProfiles(n)
}

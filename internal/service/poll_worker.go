package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/port"
)

// PollConfig holds settings for the poll worker.
type PollConfig struct {
	PollInterval time.Duration
	RunOnStart   bool
}

// PollWorker runs a batch on every tick and whenever Trigger is called. Runs
// are sequential: a trigger that arrives during a run queues at most one
// follow-up run.
type PollWorker struct {
	pipeline PipelineService
	watcher  port.MailboxWatcher
	cfg      PollConfig
	trigger  chan struct{}
	log      *slog.Logger
}

// NewPollWorker creates a new PollWorker. watcher may be nil.
func NewPollWorker(pipeline PipelineService, watcher port.MailboxWatcher, cfg PollConfig) *PollWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &PollWorker{
		pipeline: pipeline,
		watcher:  watcher,
		cfg:      cfg,
		trigger:  make(chan struct{}, 1),
		log:      logging.For("poll_worker"),
	}
}

// Trigger requests a run. It never blocks and reports whether the request was
// queued; false means a run is already pending.
func (w *PollWorker) Trigger() bool {
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs the polling loop until ctx is canceled. It returns after the
// current batch, if any, has finished.
func (w *PollWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info("poll worker started", "interval", w.cfg.PollInterval, "watch", w.watcher != nil)

	if w.watcher != nil {
		go func() {
			if err := w.watcher.Watch(ctx, func() { w.Trigger() }); err != nil && ctx.Err() == nil {
				w.log.Error("mailbox watch stopped", "error", err)
			}
		}()
	}
	if w.cfg.RunOnStart {
		w.Trigger()
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("poll worker shutdown complete")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.trigger:
			w.runOnce(ctx)
		}
	}
}

func (w *PollWorker) runOnce(ctx context.Context) {
	summary, err := w.pipeline.RunBatch(ctx)
	var fatal *domain.FatalError
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		w.log.Debug("batch already running, skipping tick")
	case errors.As(err, &fatal):
		w.log.Error("batch aborted by fatal error", "op", fatal.Op, "error", fatal.Err)
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		w.log.Error("batch failed", "error", err)
	default:
		w.log.Info("batch complete",
			"batch_id", summary.BatchID,
			"committed", summary.Committed,
			"failed", summary.Failed,
		)
	}
}

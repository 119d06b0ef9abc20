package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/events"
	otelx "github.com/repromitra/telehealth/libs/otel"
	"github.com/repromitra/telehealth/libs/outbox"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type jobQueue interface {
	FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error)
	MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error
}

type eventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Worker moves due reminders into the outbox. Jobs are claimed with
// FOR UPDATE SKIP LOCKED so several replicas can run side by side.
type Worker struct {
	pool      txBeginner
	repo      jobQueue
	outbox    eventWriter
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var ids []int64
	var failed []Job
	for _, job := range jobs {
		jobCtx := otelx.Restore(ctx, job.Traceparent, job.Tracestate)
		// Each job gets its own savepoint; a failed insert would otherwise
		// abort the batch transaction and the failure could never be marked.
		err := db.Savepoint(jobCtx, tx, func(sp pgx.Tx) error {
			evt, err := dueEvent(job)
			if err != nil {
				return err
			}
			return w.outbox.Insert(jobCtx, sp, evt)
		})
		if err != nil {
			w.logger.Warn("reminder enqueue failed", "appointment_id", job.AppointmentID, "err", err)
			failed = append(failed, job)
			continue
		}
		ids = append(ids, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return err
	}

	for _, job := range failed {
		jobCtx := otelx.Restore(ctx, job.Traceparent, job.Tracestate)
		attempts := job.Attempts + 1
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, time.Now().UTC().Add(w.backoff), "outbox enqueue failed"); err != nil {
			return err
		}
		if attempts >= job.MaxAttempts {
			if err := w.enqueueDLQ(jobCtx, tx, job, "max attempts reached"); err != nil {
				return err
			}
		}
	}

	if len(ids) > 0 {
		w.logger.Info("reminders published", "count", len(ids))
	}
	return tx.Commit(ctx)
}

func dueEvent(job Job) (outbox.Event, error) {
	return outbox.NewEvent("reminder", job.AppointmentID, events.ReminderDue, job.Payload)
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	payload := job.Payload
	payload.Error = reason
	evt, err := outbox.NewEvent("reminder", job.AppointmentID, events.ReminderFailed, payload)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}

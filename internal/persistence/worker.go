package persistence

import (
	"context"
	"database/sql"
	"time"

	"StableVault/internal/engine"
	"StableVault/internal/observability"

	"github.com/rs/zerolog"
)

// JournalWorker drains committed operation records and batch-writes them to
// Postgres. It implements engine.OperationSink with a buffered channel so a
// slow database never stalls an operation; if the buffer fills, records are
// dropped and counted rather than blocking the engine.
type JournalWorker struct {
	writer       *OperationWriter
	db           *sql.DB
	ch           chan engine.OperationRecord
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewJournalWorker(
	db *sql.DB,
	bufferSize, batchSize int,
	flushTimeout time.Duration,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *JournalWorker {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushTimeout <= 0 {
		flushTimeout = time.Second
	}
	return &JournalWorker{
		writer:       NewOperationWriter(db),
		db:           db,
		ch:           make(chan engine.OperationRecord, bufferSize),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log,
		metrics:      metrics,
	}
}

// Record implements engine.OperationSink.
func (w *JournalWorker) Record(op engine.OperationRecord) {
	select {
	case w.ch <- op:
		if w.metrics != nil {
			w.metrics.JournalChanSize.Set(float64(len(w.ch)))
		}
	default:
		w.log.Warn().Str("kind", string(op.Kind)).Msg("journal buffer full, dropping record")
		if w.metrics != nil {
			w.metrics.JournalErrors.Inc()
		}
	}
}

// Writer exposes the underlying reader for the query API.
func (w *JournalWorker) Writer() *OperationWriter {
	return w.writer
}

// Run batches incoming records and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled; the final batch is
// flushed on the way out.
func (w *JournalWorker) Run(ctx context.Context) error {
	batch := make([]OperationRow, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final journal flush failed")
				}
			}
			return ctx.Err()

		case op := <-w.ch:
			batch = append(batch, RowFromRecord(op))
			if w.metrics != nil {
				w.metrics.JournalChanSize.Set(float64(len(w.ch)))
			}

			if len(batch) >= w.batchSize {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or the context is cancelled. On cancellation one last flush runs with a
// background context so the batch is not lost to shutdown.
func (w *JournalWorker) flushWithRetry(ctx context.Context, rows []OperationRow) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("rows", len(rows)).
				Msg("journal flush retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), rows); err != nil {
					w.log.Error().Err(err).Msg("journal flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("journal flush recovered")
			}
			return
		}

		w.log.Error().Err(err).Msg("journal flush failed")
		if w.metrics != nil {
			w.metrics.JournalErrors.Inc()
		}
	}
}

func (w *JournalWorker) flush(ctx context.Context, rows []OperationRow) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.JournalRowsWritten.Add(float64(len(rows)))
		w.metrics.JournalBatchSize.Observe(float64(len(rows)))
	}
	return nil
}

/**
 * @description
 * Appraisal Worker.
 * Drains the trigger queue: replays unacknowledged entries that are due
 * (claiming ones abandoned by other consumers), then blocks for new ones.
 * Entries are acknowledged after the processor succeeds; failed entries stay
 * pending and are retried with exponential backoff until MaxAttempts, after
 * which the request is marked failed.
 *
 * @dependencies
 * - github.com/cenkalti/backoff/v5
 * - backend/internal/services (TriggerQueue, AppraisalProcessor)
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/metrics"
	"github.com/google/uuid"
)

// WorkerOptions tunes the worker loop
type WorkerOptions struct {
	Consumer     string
	MaxAttempts  int
	BlockTimeout time.Duration
	BatchSize    int64
	// RetryDelay is the wait before the first redelivery; later ones double
	// up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// ClaimIdle is how long an entry may sit unacknowledged with another
	// consumer before this worker takes it over.
	ClaimIdle time.Duration
}

// AppraisalWorker consumes the trigger queue
type AppraisalWorker struct {
	queue         *TriggerQueue
	processor     *AppraisalProcessor
	appraisals    *AppraisalService
	notifications *NotificationService
	opts          WorkerOptions
	log           logger.Component
}

// NewAppraisalWorker creates a worker. notifications may be nil.
func NewAppraisalWorker(queue *TriggerQueue, processor *AppraisalProcessor, appraisals *AppraisalService, notifications *NotificationService, opts WorkerOptions) *AppraisalWorker {
	if opts.Consumer == "" {
		opts.Consumer = "worker"
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = max(2*time.Minute, opts.RetryDelay)
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	return &AppraisalWorker{
		queue:         queue,
		processor:     processor,
		appraisals:    appraisals,
		notifications: notifications,
		opts:          opts,
		log:           logger.Named("AppraisalWorker"),
	}
}

// BatchStats summarises one ProcessBatch call
type BatchStats struct {
	Read      int
	Processed int
	Retrying  int
	Abandoned int
}

// Run processes entries until ctx is cancelled
func (w *AppraisalWorker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	w.log.Info("consuming %s as %s", TriggerStream, w.opts.Consumer)

	for {
		if ctx.Err() != nil {
			return nil
		}

		stats, err := w.ProcessBatch(ctx, true)
		if err == nil && stats.Read == 0 {
			stats, err = w.ProcessBatch(ctx, false)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("read failed: %v", err)
			if !sleepCtx(ctx, w.opts.RetryDelay) {
				return nil
			}
		}
	}
}

// ProcessBatch handles one batch: due pending entries when pending is set,
// otherwise new entries (blocking up to BlockTimeout).
func (w *AppraisalWorker) ProcessBatch(ctx context.Context, pending bool) (BatchStats, error) {
	var stats BatchStats

	var (
		msgs []TriggerMessage
		err  error
	)
	if pending {
		msgs, err = w.queue.ReadDue(ctx, w.opts.Consumer, w.opts.BatchSize, w.opts.ClaimIdle)
	} else {
		msgs, err = w.queue.ReadNew(ctx, w.opts.Consumer, w.opts.BatchSize, w.opts.BlockTimeout)
	}
	if err != nil {
		return stats, err
	}
	stats.Read = len(msgs)

	for _, msg := range msgs {
		switch w.handle(ctx, msg) {
		case entryProcessed:
			stats.Processed++
		case entryRetrying:
			stats.Retrying++
		case entryAbandoned:
			stats.Abandoned++
		}
	}
	return stats, nil
}

type entryOutcome int

const (
	entryProcessed entryOutcome = iota
	entryRetrying
	entryAbandoned
)

func (w *AppraisalWorker) handle(ctx context.Context, msg TriggerMessage) entryOutcome {
	var procErr error
	if msg.DecodeErr != nil {
		procErr = msg.DecodeErr
	} else {
		_, procErr = w.processor.Process(ctx, msg.Request)
	}

	if procErr == nil {
		if err := w.queue.Ack(ctx, msg.ID); err != nil {
			w.log.Error("ack %s failed: %v", msg.ID, err)
		}
		return entryProcessed
	}

	// Malformed entries can never succeed
	if msg.DecodeErr != nil || errors.Is(procErr, ErrValidation) {
		w.abandon(ctx, msg, procErr)
		return entryAbandoned
	}

	attempts, err := w.queue.RecordFailure(ctx, msg.ID)
	if err != nil {
		w.log.Error("record failure for %s: %v", msg.ID, err)
		return entryRetrying
	}
	if attempts >= int64(w.opts.MaxAttempts) {
		w.abandon(ctx, msg, fmt.Errorf("gave up after %d attempts: %w", attempts, procErr))
		return entryAbandoned
	}

	delay := w.retryDelay(attempts)
	if err := w.queue.ScheduleRetry(ctx, msg.ID, delay); err != nil {
		w.log.Error("schedule retry for %s: %v", msg.ID, err)
	}

	metrics.TriggerRedeliveriesTotal.Inc()
	w.log.Warn("request %s attempt %d/%d failed, retrying in %s: %v", msg.RequestID, attempts, w.opts.MaxAttempts, delay, procErr)
	return entryRetrying
}

// retryDelay is the wait after the given failed attempt: RetryDelay doubling
// per attempt up to MaxRetryDelay, with 20% jitter.
func (w *AppraisalWorker) retryDelay(attempt int64) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.opts.RetryDelay,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         w.opts.MaxRetryDelay,
	}
	b.Reset()

	d := b.NextBackOff()
	for i := int64(1); i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// abandon marks the request failed and acknowledges the entry
func (w *AppraisalWorker) abandon(ctx context.Context, msg TriggerMessage, cause error) {
	w.log.Error("abandoning request %s (entry %s): %v", msg.RequestID, msg.ID, cause)

	if msg.RequestID != uuid.Nil && w.appraisals != nil {
		marked, err := w.appraisals.MarkFailed(ctx, msg.RequestID, cause.Error())
		if err != nil {
			// Leave the entry pending so a later replay retries the compensation
			w.log.Error("mark %s failed: %v", msg.RequestID, err)
			if err := w.queue.ScheduleRetry(ctx, msg.ID, w.opts.RetryDelay); err != nil {
				w.log.Error("schedule retry for %s: %v", msg.ID, err)
			}
			return
		}
		if marked && w.notifications != nil && msg.Request != nil {
			_ = w.notifications.NotifyAppraisalFailed(ctx, msg.Request, cause.Error())
		}
	}

	if err := w.queue.Ack(ctx, msg.ID); err != nil {
		w.log.Error("ack %s failed: %v", msg.ID, err)
	}
}

// sleepCtx waits for d or until ctx is done; it reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curio-market/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func newTestWorker(f *fixture, maxAttempts int) *AppraisalWorker {
	return NewAppraisalWorker(f.queue, f.processor, f.appraisals, f.notifications, WorkerOptions{
		Consumer:      "test-worker",
		MaxAttempts:   maxAttempts,
		BlockTimeout:  20 * time.Millisecond,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 80 * time.Millisecond,
		ClaimIdle:     time.Minute,
	})
}

func pendingCount(t *testing.T, f *fixture) int64 {
	t.Helper()
	p, err := f.redis.XPending(context.Background(), TriggerStream, TriggerGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return p.Count
}

func TestWorkerProcessesAndAcknowledges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := newTestWorker(f, 3)

	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}
	req := f.submit(t, "")

	stats, err := worker.ProcessBatch(ctx, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Read != 1 || stats.Processed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if n := pendingCount(t, f); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
	if _, err := f.appraisals.GetResult(ctx, req.ID); err != nil {
		t.Fatalf("get result: %v", err)
	}
}

func TestWorkerAbsorbsDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := newTestWorker(f, 3)

	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	req := f.submit(t, "")
	if _, err := f.queue.Enqueue(ctx, req); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}

	stats, err := worker.ProcessBatch(ctx, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Processed != 2 {
		t.Fatalf("stats = %+v, want both deliveries processed", stats)
	}
	if n := f.resultCount(t); n != 1 {
		t.Fatalf("result rows = %d, want 1", n)
	}
}

func TestWorkerMarksFailedAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := newTestWorker(f, 2)

	storageDown := errors.New("storage unavailable")
	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_results", func(tx *gorm.DB) {
		if tx.Statement.Table == "appraisal_results" {
			_ = tx.AddError(storageDown)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	req := f.submit(t, "owner")

	clock := time.Now()
	f.queue.now = func() time.Time { return clock }

	stats, err := worker.ProcessBatch(ctx, false)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if stats.Retrying != 1 {
		t.Fatalf("first batch stats = %+v, want one retry", stats)
	}
	if n := pendingCount(t, f); n != 1 {
		t.Fatalf("failed entry should stay pending, pending = %d", n)
	}

	stats, err = worker.ProcessBatch(ctx, true)
	if err != nil {
		t.Fatalf("early replay batch: %v", err)
	}
	if stats.Read != 0 {
		t.Fatalf("early replay stats = %+v, entry should wait for its retry time", stats)
	}

	clock = clock.Add(time.Hour)
	stats, err = worker.ProcessBatch(ctx, true)
	if err != nil {
		t.Fatalf("replay batch: %v", err)
	}
	if stats.Abandoned != 1 {
		t.Fatalf("replay stats = %+v, want one abandoned", stats)
	}
	if n := pendingCount(t, f); n != 0 {
		t.Fatalf("abandoned entry should be acknowledged, pending = %d", n)
	}

	if _, err := f.appraisals.GetResult(ctx, req.ID); !errors.Is(err, ErrAppraisalFailed) {
		t.Fatalf("get result: err = %v, want appraisal failed", err)
	}

	notes, _ := f.notifications.GetNotifications(ctx, "owner", 10, 0)
	if len(notes) != 1 || notes[0].Type != models.NotificationTypeAppraisalFailed {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestWorkerClaimsEntriesFromIdleConsumer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := newTestWorker(f, 3)

	t0 := time.Now()
	f.mr.SetTime(t0)
	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	req := f.submit(t, "")

	// Delivered to a consumer that never acknowledges it
	msgs, err := f.queue.ReadNew(ctx, "old-host", 10, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("read as old-host: msgs = %d, err = %v", len(msgs), err)
	}

	stats, err := worker.ProcessBatch(ctx, true)
	if err != nil {
		t.Fatalf("replay batch: %v", err)
	}
	if stats.Read != 0 {
		t.Fatalf("stats = %+v, entry is not idle long enough to claim", stats)
	}

	f.mr.SetTime(t0.Add(time.Hour))
	stats, err = worker.ProcessBatch(ctx, true)
	if err != nil {
		t.Fatalf("replay batch after idle: %v", err)
	}
	if stats.Read != 1 || stats.Processed != 1 {
		t.Fatalf("stats = %+v, want the idle entry claimed and processed", stats)
	}
	if n := pendingCount(t, f); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
	if _, err := f.appraisals.GetResult(ctx, req.ID); err != nil {
		t.Fatalf("get result: %v", err)
	}
}

func TestWorkerRetryDelayBacksOff(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(f, 10)

	base := 10 * time.Millisecond
	limit := 80 * time.Millisecond
	for attempt := int64(1); attempt <= 6; attempt++ {
		want := base << (attempt - 1)
		if want > limit {
			want = limit
		}
		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want)*1.2) + time.Millisecond

		for i := 0; i < 20; i++ {
			got := worker.retryDelay(attempt)
			if got < lo || got > hi {
				t.Fatalf("attempt %d: delay %s outside [%s, %s]", attempt, got, lo, hi)
			}
		}
	}
}

func TestWorkerAbandonsMalformedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	worker := newTestWorker(f, 5)

	if err := f.queue.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	err := f.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: TriggerStream,
		Values: map[string]interface{}{"payload": "{not json"},
	}).Err()
	if err != nil {
		t.Fatalf("xadd: %v", err)
	}

	stats, err := worker.ProcessBatch(ctx, false)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Abandoned != 1 {
		t.Fatalf("stats = %+v, want malformed entry abandoned", stats)
	}
	if n := pendingCount(t, f); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	worker := newTestWorker(f, 3)
	req := f.submit(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := f.appraisals.GetResult(context.Background(), req.ID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not process the request in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}

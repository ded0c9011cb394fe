/**
 * @description
 * Worker Service Entry Point.
 * Responsible for background tasks:
 * 1. Consuming the appraisal trigger stream and running the processor.
 * 2. Re-enqueueing requests that stayed pending too long (lost triggers).
 * 3. Pruning old notifications.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/services
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/db"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/metrics"
	"github.com/curio-market/backend/internal/services"
)

const (
	staleAfter    = 10 * time.Minute
	requeueEvery  = 2 * time.Minute
	requeueBatch  = 100
	notifyMaxAge  = 30 * 24 * time.Hour
	shutdownGrace = 5 * time.Second
)

func main() {
	logger.Info("🔥 Starting Curio Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	defer db.Close(pgDB)

	redisClient, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}
	defer redisClient.Close()

	metrics.Register()

	// 3. Initialize Services
	queue := services.NewTriggerQueue(redisClient)
	notifications := services.NewNotificationService(pgDB)
	appraisals := services.NewAppraisalService(pgDB, redisClient, queue, cfg.Redis.ResultCacheTTL)
	processor := services.NewAppraisalProcessor(pgDB, redisClient, services.NewScorer(nil), notifications, cfg.Redis.ResultCacheTTL)
	worker := services.NewAppraisalWorker(queue, processor, appraisals, notifications, services.WorkerOptions{
		Consumer:      cfg.Worker.Consumer,
		MaxAttempts:   cfg.Worker.MaxAttempts,
		BlockTimeout:  cfg.Worker.BlockTimeout,
		RetryDelay:    cfg.Worker.RetryDelay,
		MaxRetryDelay: cfg.Worker.MaxRetryDelay,
		ClaimIdle:     cfg.Worker.ClaimIdle,
	})

	// 4. Consume the trigger stream
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("❌ Appraisal worker stopped: %v", err)
			cancel()
		}
	}()

	// 5. Requeue Loop
	// Periodically pick up requests whose trigger never arrived
	go func() {
		ticker := time.NewTicker(requeueEvery)
		defer ticker.Stop()

		requeueStale(ctx, appraisals)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				requeueStale(ctx, appraisals)
				if err := notifications.DeleteOldNotifications(ctx, notifyMaxAge); err != nil {
					logger.Error("Failed to prune notifications: %v", err)
				}
			}
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		logger.Warn("Worker did not stop within %s", shutdownGrace)
	}
	logger.Info("Worker exited.")
}

// requeueStale re-enqueues requests still pending after staleAfter
func requeueStale(ctx context.Context, appraisals *services.AppraisalService) {
	stale, err := appraisals.ListStalePending(ctx, staleAfter, requeueBatch)
	if err != nil {
		logger.Error("Failed to list stale requests: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	n, err := appraisals.Requeue(ctx, stale)
	if err != nil {
		logger.Error("Requeued %d/%d stale requests: %v", n, len(stale), err)
		return
	}
	logger.Info("🔄 Requeued %d stale requests", n)
}

// Command requeue re-enqueues appraisal requests that are still pending after
// a cutoff, for recovering from lost triggers without waiting on the worker's
// own sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/db"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	var (
		olderThan time.Duration
		limit     int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Re-enqueue appraisal requests stuck in pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("🚀 Starting manual requeue of stale appraisal requests...")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx := cmd.Context()
			pgDB, err := db.ConnectPostgres(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer db.Close(pgDB)

			redisClient, err := db.ConnectRedis(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer redisClient.Close()

			appraisals := services.NewAppraisalService(pgDB, redisClient, services.NewTriggerQueue(redisClient), cfg.Redis.ResultCacheTTL)

			stale, err := appraisals.ListStalePending(ctx, olderThan, limit)
			if err != nil {
				return fmt.Errorf("list stale requests: %w", err)
			}
			logger.Info("Found %d requests pending for more than %s", len(stale), olderThan)

			if dryRun {
				for _, req := range stale {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", req.ID, req.CreatedAt.Format(time.RFC3339), req.ItemName)
				}
				return nil
			}

			n, err := appraisals.Requeue(ctx, stale)
			if err != nil {
				return fmt.Errorf("requeued %d of %d: %w", n, len(stale), err)
			}
			logger.Info("✅ Requeue complete. %d requests enqueued.", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute, "only requeue requests created before now minus this duration")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum number of requests to requeue")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matching requests without enqueueing them")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

/**
 * @description
 * Main entry point for the Curio Backend API.
 * Loads configuration, wires the app and serves HTTP until SIGINT/SIGTERM.
 *
 * @dependencies
 * - backend/internal/app: process wiring
 * - backend/internal/config: Config loader
 *
 * @notes
 * - Connects to Postgres and Redis on startup.
 * - In-flight requests get up to 10s to finish on shutdown.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curio-market/backend/internal/app"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/logger"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Wire connections and routes
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start: %v", err)
	}

	// 3. Start Server
	go func() {
		if err := a.Listen(); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 4. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	if err := a.Shutdown(10 * time.Second); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	cancel()
	if err := a.Close(); err != nil {
		logger.Error("Error releasing resources: %v", err)
	}
	logger.Info("API exited.")
}

/**
 * @description
 * Process-level wiring for the API server.
 * Owns the database, Redis client, authenticator and result hub, and tears
 * them down in reverse order on Close.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api
 * - backend/internal/db
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/curio-market/backend/internal/api"
	"github.com/curio-market/backend/internal/api/middleware"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/db"
	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/metrics"
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App is a fully wired API server
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Fiber  *fiber.App

	auth   *middleware.Authenticator
	hub    *services.ResultStreamHub
	cancel context.CancelFunc
}

// New connects to Postgres and Redis and builds the HTTP app
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		_ = db.Close(pgDB)
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	auth, err := middleware.NewAuthenticator(cfg)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close(pgDB)
		return nil, fmt.Errorf("init auth: %w", err)
	}

	return Assemble(ctx, cfg, pgDB, rdb, auth), nil
}

// Assemble builds the App around already-open connections
func Assemble(ctx context.Context, cfg *config.Config, pgDB *gorm.DB, rdb *redis.Client, auth *middleware.Authenticator) *App {
	metrics.Register()

	hubCtx, cancel := context.WithCancel(ctx)
	hub := services.NewResultStreamHub(hubCtx, rdb, services.ResultChannel)

	fiberApp := api.NewApp(cfg)
	api.SetupRoutes(fiberApp, api.Dependencies{
		DB:     pgDB,
		Redis:  rdb,
		Config: cfg,
		Auth:   auth,
		Hub:    hub,
	})

	return &App{
		Config: cfg,
		DB:     pgDB,
		Redis:  rdb,
		Fiber:  fiberApp,
		auth:   auth,
		hub:    hub,
		cancel: cancel,
	}
}

// Listen serves HTTP until Shutdown is called
func (a *App) Listen() error {
	logger.Info("🚀 Starting Curio Backend on port %s", a.Config.Server.Port)
	return a.Fiber.Listen(":" + a.Config.Server.Port)
}

// Shutdown stops accepting requests and waits up to timeout for in-flight ones
func (a *App) Shutdown(timeout time.Duration) error {
	return a.Fiber.ShutdownWithTimeout(timeout)
}

// Close releases every resource the App owns
func (a *App) Close() error {
	a.cancel()
	a.hub.Close()
	a.auth.Close()

	var errs []error
	if err := a.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	if err := db.Close(a.DB); err != nil {
		errs = append(errs, fmt.Errorf("close postgres: %w", err))
	}
	return errors.Join(errs...)
}

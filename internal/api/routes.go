/**
 * @description
 * API Route definitions.
 * Builds the Fiber app, sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/prometheus/client_golang: /metrics exposition
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"context"
	"time"

	"github.com/curio-market/backend/internal/api/handlers"
	"github.com/curio-market/backend/internal/api/middleware"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies are the shared resources the routes are built from
type Dependencies struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Config *config.Config
	Auth   *middleware.Authenticator
	Hub    *services.ResultStreamHub // nil disables the SSE endpoint
	Scorer *services.Scorer          // nil uses a time-seeded scorer
}

// NewApp creates the Fiber app with global middleware installed
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Curio Appraisal API",
		StrictRouting: true,
		CaseSensitive: true,
	})

	app.Use(recover.New()) // Panic recovery
	if cfg.Server.Env != "test" {
		app.Use(fiberLogger.New()) // Request logging
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	// 1. Initialize Services
	queue := services.NewTriggerQueue(deps.Redis)
	notificationService := services.NewNotificationService(deps.DB)
	appraisalService := services.NewAppraisalService(deps.DB, deps.Redis, queue, cfg.Redis.ResultCacheTTL)
	scorer := deps.Scorer
	if scorer == nil {
		scorer = services.NewScorer(nil)
	}
	processor := services.NewAppraisalProcessor(deps.DB, deps.Redis, scorer, notificationService, cfg.Redis.ResultCacheTTL)
	profileService := services.NewProfileService(deps.DB, deps.Redis)
	interestService := services.NewInterestService(deps.DB, appraisalService, profileService, notificationService)
	transactionService := services.NewTransactionService(deps.DB, appraisalService, notificationService)
	reviewService := services.NewReviewService(deps.DB, appraisalService, profileService, notificationService)

	// 2. Initialize Handlers
	appraisalHandler := handlers.NewAppraisalHandler(appraisalService, interestService, reviewService, deps.Hub)
	hookHandler := handlers.NewHookHandler(processor)
	profileHandler := handlers.NewProfileHandler(profileService)
	interestHandler := handlers.NewInterestHandler(interestService)
	transactionHandler := handlers.NewTransactionHandler(transactionService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	reviewHandler := handlers.NewReviewHandler(reviewService)

	protected := deps.Auth.Protected()
	optional := deps.Auth.Optional()

	// 3. Define Routes
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")

	// Public Routes
	v1.Get("/health", healthCheck(deps))

	appraisals := v1.Group("/appraisals")
	appraisals.Post("", protected, appraisalHandler.Submit)
	appraisals.Get("/browse", appraisalHandler.Browse)
	appraisals.Get("/mine", protected, appraisalHandler.ListMine)
	appraisals.Get("/pending", protected, reviewHandler.ListPending)
	appraisals.Get("/:id", optional, appraisalHandler.GetAppraisal)
	appraisals.Post("/:id/review", protected, reviewHandler.SubmitReview)
	appraisals.Get("/:id/result", appraisalHandler.GetResult)
	appraisals.Get("/:id/stream", appraisalHandler.StreamResult)

	// Trigger webhook (shared secret, not user auth)
	hooks := v1.Group("/hooks", middleware.TriggerSecret(cfg.Auth.TriggerSecret))
	hooks.Post("/process-appraisal", hookHandler.ProcessAppraisal)

	// User Routes (Protected)
	profile := v1.Group("/profile", protected)
	profile.Post("", profileHandler.UpsertProfile)
	profile.Get("/me", profileHandler.GetMe)

	interests := v1.Group("/interests", protected)
	interests.Post("", interestHandler.ExpressInterest)
	interests.Get("", interestHandler.ListMine)
	interests.Get("/received", interestHandler.ListReceived)
	interests.Delete("/:id", interestHandler.RemoveInterest)

	transactions := v1.Group("/transactions", protected)
	transactions.Post("", transactionHandler.OpenTransaction)
	transactions.Get("", transactionHandler.ListTransactions)
	transactions.Get("/:id", transactionHandler.GetTransaction)
	transactions.Patch("/:id/status", transactionHandler.UpdateStatus)

	notifications := v1.Group("/notifications", protected)
	notifications.Get("", notificationHandler.GetNotifications)
	notifications.Post("/read-all", notificationHandler.MarkAllNotificationsRead)
	notifications.Post("/:id/read", notificationHandler.MarkNotificationRead)
}

func healthCheck(deps Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		dbStatus := "connected"
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unavailable"
		}
		redisStatus := "connected"
		if deps.Redis.Ping(ctx).Err() != nil {
			redisStatus = "unavailable"
		}

		status := fiber.StatusOK
		overall := "ok"
		if dbStatus != "connected" || redisStatus != "connected" {
			status = fiber.StatusServiceUnavailable
			overall = "degraded"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":  overall,
			"service": "curio-backend",
			"db":      dbStatus,
			"redis":   redisStatus,
		})
	}
}

package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"tokoshop/internal/config"
	"tokoshop/internal/events"
	"tokoshop/internal/handlers"
	"tokoshop/internal/metrics"
	"tokoshop/internal/middleware"
	"tokoshop/internal/payment"
	"tokoshop/internal/repositories"
	"tokoshop/internal/services"
)

// dependencies are the outside systems the app talks to. Cache and
// Dispatcher may be nil.
type dependencies struct {
	DB         *gorm.DB
	Gateway    payment.Gateway
	Cache      services.ProcessedCache
	Notifier   services.Notifier
	Dispatcher *events.Dispatcher
	Registry   *prometheus.Registry
}

// application is the wired service: the HTTP app plus the background work
// main runs alongside it.
type application struct {
	http     *fiber.App
	sweeper  *services.Sweeper
	webhooks *services.WebhookProcessor
}

func newApplication(cfg config.Config, deps dependencies) *application {
	m := metrics.New(deps.Registry)

	// --- Repositories ---
	ledger := repositories.NewGORMInventoryLedger()
	reservationRepo := repositories.NewGORMReservationRepository()
	productRepo := repositories.NewGORMProductRepository()
	userRepo := repositories.NewGORMUserRepository()
	orderRepo := repositories.NewGORMOrderRepository()
	attemptRepo := repositories.NewGORMCheckoutAttemptRepository()
	failureLog := repositories.NewGORMFailureLog()

	// --- Services ---
	tokenService := services.NewTokenService(cfg.JWTSecret)
	cartService := services.NewCartService(deps.DB, ledger, reservationRepo, productRepo)
	checkoutService := services.NewCheckoutService(deps.DB, ledger, reservationRepo, productRepo, userRepo, attemptRepo, deps.Gateway,
		services.CheckoutConfig{HoldTTL: cfg.HoldTTL, Currency: cfg.Currency, ClientSuccessURL: cfg.ClientSuccessURL}, m)
	materializer := services.NewMaterializer(deps.DB, ledger, reservationRepo, productRepo, userRepo, orderRepo, failureLog,
		cfg.MaterializeMaxRetries, cfg.MaterializeBackoff, m)
	notifications := services.NewNotificationService(deps.DB, userRepo, deps.Notifier)
	webhooks := services.NewWebhookProcessor(deps.DB, materializer, attemptRepo, deps.Cache, notifications, deps.Dispatcher,
		services.WebhookConfig{Secret: cfg.PaystackSecretKey, MaxRetries: cfg.WebhookMaxRetries, Backoff: cfg.WebhookBackoff}, m)
	orderService := services.NewOrderService(deps.DB, orderRepo)
	sweeper := services.NewSweeper(deps.DB, ledger, reservationRepo, attemptRepo, cfg.SweepInterval, m)

	// --- Handlers ---
	cartHandler := handlers.NewCartHandler(cartService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, webhooks)
	orderHandler := handlers.NewOrderHandler(orderService)

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(m.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		status, code := "healthy", fiber.StatusOK
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status, code = "unhealthy", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(deps.Registry)))

	apiV1 := app.Group("/api/v1")
	checkoutHandler.RegisterWebhook(apiV1)

	protectedRoutes := apiV1.Group("", middleware.AuthRequired(tokenService))
	cartHandler.RegisterRoutes(protectedRoutes)
	checkoutHandler.RegisterRoutes(protectedRoutes)
	orderHandler.RegisterRoutes(protectedRoutes)

	return &application{http: app, sweeper: sweeper, webhooks: webhooks}
}

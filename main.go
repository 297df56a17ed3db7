package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tokoshop/internal/cache"
	"tokoshop/internal/config"
	"tokoshop/internal/database"
	"tokoshop/internal/email"
	"tokoshop/internal/events"
	"tokoshop/internal/payment"
	"tokoshop/pkg/kafka"
	"tokoshop/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// --- Database ---
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- External services ---
	deps := dependencies{
		DB:       db,
		Gateway:  payment.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, 30*time.Second),
		Registry: prometheus.NewRegistry(),
	}
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.SMTPHost != "" {
		deps.Notifier = email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	} else {
		log.Println("SMTP_HOST not set. Order confirmation emails are disabled.")
	}

	// --- Processed-payment cache (optional) ---
	if cfg.RedisAddr != "" {
		rdb := cache.NewClient(cfg.RedisAddr)
		defer rdb.Close()
		processed := cache.NewProcessedPayments(rdb)
		if err := processed.Ping(ctx); err != nil {
			log.Printf("Redis at %s unreachable, webhook fast path disabled: %v", cfg.RedisAddr, err)
		} else {
			deps.Cache = processed
		}
	}

	// --- Event broker ---
	switch cfg.EventsBroker {
	case "rabbitmq":
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		deps.Dispatcher = events.NewDispatcher(mqClient, events.RoutingKey)
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		deps.Dispatcher = events.NewDispatcher(producer, events.PartitionKey)
	default:
		log.Println("No event broker configured. Order events will not be published.")
	}

	app := newApplication(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on port %s", cfg.AppPort)
		return app.http.Listen(cfg.AppPort)
	})
	g.Go(func() error {
		return app.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		if err := app.http.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Error during Fiber shutdown: %v", err)
		}
		app.webhooks.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped with error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("Server gracefully stopped")
}

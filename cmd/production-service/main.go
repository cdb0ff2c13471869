package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atelier/production-backend/internal/production/consumers"
	"github.com/atelier/production-backend/internal/production/events"
	"github.com/atelier/production-backend/internal/production/handler"
	"github.com/atelier/production-backend/internal/production/repository"
	"github.com/atelier/production-backend/internal/production/service"
	"github.com/atelier/production-backend/pkg/cache"
	"github.com/atelier/production-backend/pkg/config"
	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/httputil"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/atelier/production-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const serviceName = "production-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(serviceName, cfg.Server.Environment, cfg.Server.LogLevel)
	log.Info().Msg("starting Production Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Workshop.AutoMigrate {
		if err := db.ApplySchema(ctx, repository.Schema); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
		log.Info().Msg("schema applied")
	}

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	publisher, err := events.NewProductionEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Redis backs intake de-duplication only
	rdb, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	// Initialize repositories
	unitRepo := repository.NewUnitRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)

	// Initialize services
	workflowService := service.NewWorkflowService(db, unitRepo, movementRepo, publisher, log)
	ledgerService := service.NewLedgerService(db, batchRepo, publisher, log)
	reportingService := service.NewReportingService(unitRepo, batchRepo,
		service.SnapshotAggregator{UnknownClient: cfg.Workshop.UnknownClientLabel}, log)

	handlers := handler.Handlers{
		Units: handler.NewUnitHandler(workflowService, log),
		Stock: handler.NewStockHandler(ledgerService, cfg.Workshop.ImportMaxBytes, log),
		Reports: handler.NewReportHandler(reportingService,
			service.PickingListRenderer{Title: cfg.Workshop.PickingListTitle}, log),
	}

	// Start intake consumer
	intakeConsumer, err := consumers.NewIntakeConsumer(rmq, workflowService, ledgerService,
		consumers.NewRedisDeduplicator(rdb, cfg.Redis.DedupTTL), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create intake consumer")
	}

	if err := intakeConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start intake consumer")
	}

	// Rebuild the broker connection and resume intake if RabbitMQ drops us
	go rmq.Watch(ctx)

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handler.Health(serviceName, map[string]handler.HealthCheck{
		"database": db.Health,
		"rabbitmq": func(context.Context) map[string]string { return rmq.Health() },
		"redis": func(ctx context.Context) map[string]string {
			return cache.Health(ctx, rdb)
		},
	}))

	r.Route("/api/v1/production", func(r chi.Router) {
		r.Use(httputil.Timeout(cfg.Workshop.OperationTimeout))
		handlers.Routes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the consumer
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

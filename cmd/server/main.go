package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/telesight/cdr-intel/internal/cdr"
	"github.com/telesight/cdr-intel/internal/config"
	"github.com/telesight/cdr-intel/internal/database"
	"github.com/telesight/cdr-intel/internal/fraud"
	"github.com/telesight/cdr-intel/internal/graph"
	"github.com/telesight/cdr-intel/internal/handlers"
	"github.com/telesight/cdr-intel/internal/kafka"
	"github.com/telesight/cdr-intel/internal/metrics"
	"github.com/telesight/cdr-intel/internal/monitoring"
)

const (
	serviceName = "cdr-intel"
	version     = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := setupLogging(cfg)
	logger.Info("Starting CDR Intelligence Engine",
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment)

	// Setup database connection
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()

	// Run database migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// Setup Redis connection for the monitoring store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", "error", err)
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("Failed to ping Redis", "error", err)
		os.Exit(1)
	}

	// Setup repositories
	cdrRepo := database.NewCdrRepository(db, logger)
	caseRepo := database.NewCaseRepository(db, logger)

	// Setup metrics collector
	metricsCollector := metrics.NewMetricsCollector()

	// Setup domain components
	searcher := cdr.NewSearcher(cdrRepo, cfg.Search, logger)
	caseCorrelator := fraud.NewCaseCorrelator(caseRepo, logger)
	globalCorrelator := fraud.NewGlobalCorrelator(caseRepo, logger)
	diagramBuilder := graph.NewBuilder(cdrRepo, cfg.Diagram, logger)

	// Setup monitoring engine with optional Kafka alert publishing
	var alertPublisher monitoring.AlertPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("Failed to close Kafka producer", "error", err)
			}
		}()
		alertPublisher = producer
	}

	monitoringStore := monitoring.NewRedisStore(redisClient)
	monitor := monitoring.NewEngine(monitoringStore, globalCorrelator, alertPublisher, cfg.Monitoring, logger)

	// Setup HTTP handlers
	httpHandlers := handlers.NewHTTPHandler(
		cfg,
		logger,
		searcher,
		caseCorrelator,
		globalCorrelator,
		monitor,
		diagramBuilder,
		metricsCollector,
	)

	// Setup HTTP router
	httpRouter := mux.NewRouter()
	httpHandlers.RegisterRoutes(httpRouter)

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Start periodic monitoring refresh
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	// Start Kafka consumer for ingest-triggered refreshes
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, monitor, logger)
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Error("Failed to close Kafka consumer", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Kafka consumer failed", "error", err)
				cancel()
			}
		}()
	}

	// Start HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("Shutting down services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", "error", err)
	}

	wg.Wait()

	logger.Info("Service shutdown complete")
}

func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

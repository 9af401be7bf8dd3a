package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carlito03/rets/internal/config"
	"github.com/carlito03/rets/internal/ingest"
	"github.com/carlito03/rets/internal/store"
	"github.com/carlito03/rets/internal/upstream"
	"github.com/carlito03/rets/shared/logger"
	"github.com/carlito03/rets/shared/postgresql"
)

const startupTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("INGEST_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/ingest-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateIngestConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting ingest service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client and the listing cache on top of it
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	listingStore := store.New(dbClient)

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), startupTimeout)
	err = listingStore.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	appLogger.Info("Database connection established")

	// Wire the feed client and the orchestrator behind the scheduler
	tokens := upstream.NewTokenBroker(upstream.TokenBrokerConfig{
		TokenURL:     cfg.Upstream.TokenURL,
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		Scope:        cfg.Upstream.Scope,
		Timeout:      cfg.Upstream.Timeout,
	}, appLogger.Logger)

	upstreamClient := upstream.NewClient(upstream.ClientConfig{
		BaseURL:    cfg.Upstream.BaseURL,
		PageDelay:  cfg.Upstream.PageDelay,
		MaxRecords: cfg.Upstream.MaxRecords,
		Timeout:    cfg.Upstream.Timeout,
	}, tokens, appLogger.Logger)

	orchestrator := ingest.NewOrchestrator(ingest.OrchestratorConfig{
		Resource: cfg.Upstream.Resource,
		PageSize: cfg.Upstream.PageSize,
	}, upstreamClient, listingStore, appLogger.Logger)

	scheduler := ingest.NewScheduler(ingest.SchedulerConfig{
		Cron:         cfg.Ingest.Cron,
		Interval:     cfg.Ingest.Interval,
		Window:       cfg.Ingest.Window,
		RunOnStart:   cfg.Ingest.RunOnStart,
		Cities:       cfg.Ingest.Cities,
		Statuses:     cfg.Ingest.Statuses,
		PropertyType: cfg.Ingest.PropertyType,
	}, orchestrator, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
	}
	defer cleanup()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	appLogger.Info("Ingest service is running",
		slog.String("cron", cfg.Ingest.Cron),
		slog.Duration("interval", cfg.Ingest.Interval),
		slog.Duration("window", cfg.Ingest.Window),
		slog.Int("cities", len(cfg.Ingest.Cities)),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down ingest service...")

	cancel()
	scheduler.Stop()

	appLogger.Info("Ingest service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

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
	"github.com/carlito03/rets/internal/imageworker"
	"github.com/carlito03/rets/internal/store"
	"github.com/carlito03/rets/shared/logger"
	"github.com/carlito03/rets/shared/objectstore"
	"github.com/carlito03/rets/shared/postgresql"
	"github.com/carlito03/rets/shared/rabbitmq"
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
	defaultConfigPath := os.Getenv("IMAGE_WORKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/image-worker/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting image worker",
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

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize object store client
	storeCtx, storeCancel := context.WithTimeout(context.Background(), startupTimeout)
	objectClient, err := initObjectStore(storeCtx, &cfg.ObjectStore, appLogger.Logger)
	storeCancel()
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	builder := imageworker.NewImageBuilder(cfg.Images.JPEGQuality, appLogger.Logger)

	// Create worker instance
	w := imageworker.NewWorker(&imageworker.Config{
		Logger:        appLogger.Logger,
		Store:         listingStore,
		Objects:       objectClient,
		Builder:       builder,
		RabbitClient:  rabbitClient,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:    cfg.Worker.JobTimeout,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
	}
	defer cleanup()

	// Start worker in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := w.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Image worker is running",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.Int("prefetch_count", cfg.RabbitMQ.Consumer.PrefetchCount),
	)

	// Wait for interrupt signal or worker error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		appLogger.Error("Worker failed",
			slog.Any("error", err),
		)
		return err
	case sig := <-quit:
		appLogger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)
	}

	appLogger.Info("Shutting down image worker...")

	// Stop accepting new jobs and wait for in-flight ones to finish
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Image worker shutdown complete")
	case <-shutdownCtx.Done():
		appLogger.Warn("Shutdown timeout exceeded, forcing exit")
	}

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

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initObjectStore initializes the S3-compatible object store client
func initObjectStore(ctx context.Context, cfg *config.ObjectStoreConfig, logger *slog.Logger) (*objectstore.Client, error) {
	storeConfig := &objectstore.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PublicBaseURL:   cfg.PublicBaseURL,
	}

	return objectstore.NewClient(ctx, storeConfig, logger)
}

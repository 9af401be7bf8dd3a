package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/carlito03/rets/internal/api/handler"
	"github.com/carlito03/rets/internal/api/router"
	"github.com/carlito03/rets/internal/assets"
	"github.com/carlito03/rets/internal/config"
	"github.com/carlito03/rets/internal/ingest"
	"github.com/carlito03/rets/internal/store"
	"github.com/carlito03/rets/internal/upstream"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
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

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, listingStore, dbClient, rabbitClient, objectClient)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
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

// initRouter wires the ingestion pipeline behind the Gin router
func initRouter(
	cfg *config.Config,
	logger *slog.Logger,
	listingStore *store.Store,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
	objectClient *objectstore.Client,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	tokens := upstream.NewTokenBroker(upstream.TokenBrokerConfig{
		TokenURL:     cfg.Upstream.TokenURL,
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		Scope:        cfg.Upstream.Scope,
		Timeout:      cfg.Upstream.Timeout,
	}, logger)

	upstreamClient := upstream.NewClient(upstream.ClientConfig{
		BaseURL:    cfg.Upstream.BaseURL,
		PageDelay:  cfg.Upstream.PageDelay,
		MaxRecords: cfg.Upstream.MaxRecords,
		Timeout:    cfg.Upstream.Timeout,
	}, tokens, logger)

	orchestrator := ingest.NewOrchestrator(ingest.OrchestratorConfig{
		Resource: cfg.Upstream.Resource,
		PageSize: cfg.Upstream.PageSize,
	}, upstreamClient, listingStore, logger)

	dispatcher := assets.NewDispatcher(assets.DispatcherConfig{
		BatchSize:  cfg.Images.BatchSize,
		BatchDelay: cfg.Images.BatchDelay,
		Width:      cfg.Images.Width,
		GalleryMax: cfg.Images.GalleryMax,
	}, rabbitClient, logger)

	resolver := assets.NewResolver(objectClient, cfg.Images.Width, 0, logger)

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:      logger,
		Store:       listingStore,
		Ingester:    orchestrator,
		Dispatcher:  dispatcher,
		Resolver:    resolver,
		DBHealth:    dbClient.HealthCheck,
		QueueHealth: rabbitClient.IsConnected,
		APIKey:      cfg.Server.APIKey,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}

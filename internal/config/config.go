package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration. One file drives
// all three services; each binary validates only the sections it uses.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Images      ImagesConfig      `yaml:"images"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	APIKey          string        `yaml:"api_key"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// UpstreamConfig holds the listing feed connection and paging settings.
type UpstreamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Resource     string        `yaml:"resource"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scope        string        `yaml:"scope"`
	PageSize     int           `yaml:"page_size"`
	PageDelay    time.Duration `yaml:"page_delay"`
	MaxRecords   int           `yaml:"max_records"`
	Timeout      time.Duration `yaml:"timeout"`
}

// IngestConfig holds the scheduled ingestion settings. Cron wins when both
// cron and interval are set.
type IngestConfig struct {
	Cron         string        `yaml:"cron"`
	Interval     time.Duration `yaml:"interval"`
	Window       time.Duration `yaml:"window"`
	RunOnStart   bool          `yaml:"run_on_start"`
	Cities       []string      `yaml:"cities"`
	Statuses     []string      `yaml:"statuses"`
	PropertyType string        `yaml:"property_type"`
}

// ImagesConfig holds image derivative settings shared by the dispatch side
// and the worker side.
type ImagesConfig struct {
	Width       int           `yaml:"width"`
	GalleryMax  int           `yaml:"gallery_max"`
	BatchSize   int           `yaml:"batch_size"`
	BatchDelay  time.Duration `yaml:"batch_delay"`
	JPEGQuality int           `yaml:"jpeg_quality"`
}

// ObjectStoreConfig holds the S3-compatible bucket settings for derivatives.
type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds image worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file. Secrets can be overridden
// through environment variables so the YAML checked into deploy repos stays
// free of credentials.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.APIKey = getEnv("LISTINGS_API_KEY", c.Server.APIKey)
	c.Database.Password = getEnv("LISTINGS_DB_PASSWORD", c.Database.Password)
	c.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", c.RabbitMQ.Password)
	c.Upstream.ClientID = getEnv("UPSTREAM_CLIENT_ID", c.Upstream.ClientID)
	c.Upstream.ClientSecret = getEnv("UPSTREAM_CLIENT_SECRET", c.Upstream.ClientSecret)
	c.ObjectStore.AccessKeyID = getEnv("OBJECT_STORE_ACCESS_KEY_ID", c.ObjectStore.AccessKeyID)
	c.ObjectStore.SecretAccessKey = getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", c.ObjectStore.SecretAccessKey)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

// ValidateAPIConfig checks the sections the API service depends on.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	return c.validateObjectStore()
}

// ValidateIngestConfig checks the sections the ingest daemon depends on.
func (c *Config) ValidateIngestConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if c.Ingest.Cron == "" && c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest schedule is required: set ingest cron or interval")
	}

	if c.Ingest.Window <= 0 {
		return fmt.Errorf("ingest window must be greater than 0")
	}

	if len(c.Ingest.Cities) == 0 {
		return fmt.Errorf("ingest cities are required")
	}

	return nil
}

// ValidateWorkerConfig checks the sections the image worker depends on.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateObjectStore(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		return fmt.Errorf("rabbitmq consumer prefetch_count must be greater than 0")
	}

	if c.Images.Width <= 0 {
		return fmt.Errorf("images width must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base_url is required")
	}

	if c.Upstream.TokenURL == "" {
		return fmt.Errorf("upstream token_url is required")
	}

	if c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
		return fmt.Errorf("upstream client credentials are required")
	}

	return nil
}

func (c *Config) validateObjectStore() error {
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}

	if c.ObjectStore.Region == "" {
		return fmt.Errorf("object store region is required")
	}

	return nil
}

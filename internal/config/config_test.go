package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config that passes every service validator; table
// cases below break one field at a time.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "listings_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "listings_exchange"},
			Queue:    QueueConfig{Name: "image_jobs"},
			Consumer: ConsumerConfig{PrefetchCount: 8},
		},
		Upstream: UpstreamConfig{
			BaseURL:      "https://api.upstream.example.com/odata",
			TokenURL:     "https://auth.upstream.example.com/token",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
		},
		Ingest: IngestConfig{
			Cron:   "0 */6 * * *",
			Window: 24 * time.Hour,
			Cities: []string{"Austin"},
		},
		Images: ImagesConfig{Width: 400},
		ObjectStore: ObjectStoreConfig{
			Bucket: "listing-images",
			Region: "us-east-1",
		},
		Worker: WorkerConfig{
			Concurrency:     4,
			JobTimeout:      2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "listings_db", cfg.Database.Database)
				assert.Equal(t, "listings_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "image_jobs", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "https://api.upstream.example.com/odata", cfg.Upstream.BaseURL)
				assert.Equal(t, []string{"Austin", "San Diego"}, cfg.Ingest.Cities)
				assert.Equal(t, 24*time.Hour, cfg.Ingest.Window)
				assert.Equal(t, 400, cfg.Images.Width)
				assert.Equal(t, "listing-images", cfg.ObjectStore.Bucket)
				assert.Equal(t, "listings-api-service", cfg.App.Name)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LISTINGS_DB_PASSWORD", "env-db-pass")
	t.Setenv("UPSTREAM_CLIENT_SECRET", "env-upstream-secret")
	t.Setenv("OBJECT_STORE_SECRET_ACCESS_KEY", "env-store-secret")
	t.Setenv("LISTINGS_API_KEY", "env-api-key")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "env-db-pass", cfg.Database.Password)
	assert.Equal(t, "env-upstream-secret", cfg.Upstream.ClientSecret)
	assert.Equal(t, "env-store-secret", cfg.ObjectStore.SecretAccessKey)
	assert.Equal(t, "env-api-key", cfg.Server.APIKey)

	// Values without an override keep what the file says.
	assert.Equal(t, "client-id", cfg.Upstream.ClientID)
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "missing upstream base url",
			mutate:    func(c *Config) { c.Upstream.BaseURL = "" },
			wantErr:   true,
			errString: "upstream base_url is required",
		},
		{
			name:      "missing upstream token url",
			mutate:    func(c *Config) { c.Upstream.TokenURL = "" },
			wantErr:   true,
			errString: "upstream token_url is required",
		},
		{
			name:      "missing upstream credentials",
			mutate:    func(c *Config) { c.Upstream.ClientSecret = "" },
			wantErr:   true,
			errString: "upstream client credentials are required",
		},
		{
			name:      "missing object store bucket",
			mutate:    func(c *Config) { c.ObjectStore.Bucket = "" },
			wantErr:   true,
			errString: "object store bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateIngestConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config with cron",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "valid config with interval fallback",
			mutate: func(c *Config) {
				c.Ingest.Cron = ""
				c.Ingest.Interval = time.Hour
			},
			wantErr: false,
		},
		{
			name: "no schedule at all",
			mutate: func(c *Config) {
				c.Ingest.Cron = ""
				c.Ingest.Interval = 0
			},
			wantErr:   true,
			errString: "ingest schedule is required",
		},
		{
			name:      "zero window",
			mutate:    func(c *Config) { c.Ingest.Window = 0 },
			wantErr:   true,
			errString: "ingest window must be greater than 0",
		},
		{
			name:      "no cities",
			mutate:    func(c *Config) { c.Ingest.Cities = nil },
			wantErr:   true,
			errString: "ingest cities are required",
		},
		{
			name:      "upstream still required",
			mutate:    func(c *Config) { c.Upstream.TokenURL = "" },
			wantErr:   true,
			errString: "upstream token_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateIngestConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name:      "zero prefetch",
			mutate:    func(c *Config) { c.RabbitMQ.Consumer.PrefetchCount = 0 },
			wantErr:   true,
			errString: "prefetch_count must be greater than 0",
		},
		{
			name:      "zero image width",
			mutate:    func(c *Config) { c.Images.Width = 0 },
			wantErr:   true,
			errString: "images width must be greater than 0",
		},
		{
			name:      "object store still required",
			mutate:    func(c *Config) { c.ObjectStore.Region = "" },
			wantErr:   true,
			errString: "object store region is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateIngestConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

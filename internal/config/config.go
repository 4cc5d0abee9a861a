package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Persistence PersistenceConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Queue       QueueConfig
	Webhook     WebhookConfig
	Simulator   SimulatorConfig
	Assistant   AssistantConfig
	Metadata    MetadataConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
	Tracing     TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// AuthConfig holds the simulated auth store settings
type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	SimulatedLatency time.Duration
}

// Persistence backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMinio    = "minio"
)

// PersistenceConfig selects where store snapshots are kept
type PersistenceConfig struct {
	Backend string // memory, redis, postgres
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration for object-URL bytes
type StorageConfig struct {
	Backend         string // memory, minio
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// WebhookConfig lists endpoints that receive lifecycle events
type WebhookConfig struct {
	URLs    []string
	Secret  string
	Timeout time.Duration
	// Retries are the waits between attempts; empty means 1s, 5s, 15s
	Retries []time.Duration
}

// SimulatorConfig holds the processing simulation cadence
type SimulatorConfig struct {
	StepDuration time.Duration
	TickInterval time.Duration
}

// AssistantConfig holds the chat completion collaborator settings
type AssistantConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// MetadataConfig holds the video metadata lookup settings
type MetadataConfig struct {
	OEmbedEndpoint string
	Timeout        time.Duration
	CacheTTL       time.Duration
}

// RateLimitConfig holds limits for the public collaborator endpoints and
// the per-email login throttle
type RateLimitConfig struct {
	RPS         int
	Burst       int
	LoginLimit  int64
	LoginWindow time.Duration
}

// MetricsConfig holds the prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Persistence.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendMinio:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Simulator.TickInterval <= 0 || c.Simulator.StepDuration < c.Simulator.TickInterval {
		return fmt.Errorf("simulator tick interval %s must be positive and not exceed step duration %s",
			c.Simulator.TickInterval, c.Simulator.StepDuration)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "clipwave-dev-secret")
	v.SetDefault("auth.tokenTTL", "168h")
	v.SetDefault("auth.simulatedLatency", "0s")

	v.SetDefault("persistence.backend", BackendMemory)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "clipwave")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "clipwave-objects")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)

	// Queue defaults
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	v.SetDefault("webhook.urls", []string{})
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")

	// Simulator defaults: 3s per stage, one tick every 50ms
	v.SetDefault("simulator.stepDuration", "3s")
	v.SetDefault("simulator.tickInterval", "50ms")

	// Assistant defaults
	v.SetDefault("assistant.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("assistant.apiKey", "")
	v.SetDefault("assistant.model", "gpt-4o")
	v.SetDefault("assistant.timeout", "30s")
	v.SetDefault("assistant.temperature", 0.7)
	v.SetDefault("assistant.maxTokens", 500)

	// Metadata defaults
	v.SetDefault("metadata.oembedEndpoint", "https://www.youtube.com/oembed")
	v.SetDefault("metadata.timeout", "10s")
	v.SetDefault("metadata.cacheTTL", "1h")

	v.SetDefault("rateLimit.rps", 5)
	v.SetDefault("rateLimit.burst", 10)
	v.SetDefault("rateLimit.loginLimit", 10)
	v.SetDefault("rateLimit.loginWindow", "15m")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "clipwave-api")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type RegistryConfig struct {
	DatabaseURL    string `mapstructure:"database_url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type QueueConfig struct {
	URL            string        `mapstructure:"url"`
	Stream         string        `mapstructure:"stream"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	AckWait        time.Duration `mapstructure:"ack_wait"`
	MaxDeliver     int           `mapstructure:"max_deliver"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type StorageConfig struct {
	DefaultBackend string           `mapstructure:"default_backend"`
	SQLite         SQLiteConfig     `mapstructure:"sqlite"`
	OpenSearch     OpenSearchConfig `mapstructure:"opensearch"`
	S3             S3Config         `mapstructure:"s3"`
	WriteTimeout   time.Duration    `mapstructure:"write_timeout"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	Index         string `mapstructure:"index"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type ConsumerConfig struct {
	Name          string        `mapstructure:"name"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type IngestionConfig struct {
	MaxBatchSize      int           `mapstructure:"max_batch_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("registry.database_url", "")
	v.SetDefault("registry.migrations_path", "migrations")
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.stream", "LOGS")
	v.SetDefault("queue.subject_prefix", "logs.entry")
	v.SetDefault("queue.max_age", "24h")
	v.SetDefault("queue.ack_wait", "30s")
	v.SetDefault("queue.max_deliver", 5)
	v.SetDefault("queue.publish_timeout", "5s")
	v.SetDefault("storage.default_backend", "sqlite")
	v.SetDefault("storage.write_timeout", "10s")
	v.SetDefault("storage.sqlite.path", "logvault.db")
	v.SetDefault("storage.opensearch.url", "http://localhost:9200")
	v.SetDefault("storage.opensearch.username", "admin")
	v.SetDefault("storage.opensearch.tls_skip_verify", true)
	v.SetDefault("storage.opensearch.index", "logs")
	v.SetDefault("storage.s3.endpoint", "http://localhost:9000")
	v.SetDefault("storage.s3.access_key", "minioadmin")
	v.SetDefault("storage.s3.secret_key", "minioadmin")
	v.SetDefault("storage.s3.bucket", "log-storage")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "logs")
	v.SetDefault("consumer.name", "logvault-consumer")
	v.SetDefault("consumer.retry_attempts", 3)
	v.SetDefault("consumer.retry_backoff", "250ms")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("ingestion.max_batch_size", 1000)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 10000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/logvault")
	}

	// Environment variables override
	v.SetEnvPrefix("LOGVAULT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

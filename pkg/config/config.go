// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem: the HTTP server, the KV store adapter, the query result
// cache, the analytics event stream, collection recovery, query limits,
// logging, tracing, and metrics.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Manager  ManagerConfig  `yaml:"manager"`
	Search   SearchConfig   `yaml:"search"`
	Auth     AuthConfig     `yaml:"auth"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the collection manager's API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig holds connection parameters for the ordered KV store adapter,
// backed by PostgreSQL (see internal/store).
type StoreConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds broker and topic settings for the search & mutation
// event stream that feeds the analytics collector/aggregator.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CollectionEvents string `yaml:"collectionEvents"`
	AnalyticsEvents  string `yaml:"analyticsEvents"`
}

// RedisConfig holds connection and caching parameters for the query result
// cache placed in front of Collection.Search / Manager.DoSearch.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ManagerConfig controls collection lifecycle, recovery, and memory-budget
// tuning for the collection manager.
type ManagerConfig struct {
	MaxMemoryRatio     float64       `yaml:"maxMemoryRatio"`
	InitBatchSize      int           `yaml:"initBatchSize"`
	RecoveryThrottlePct int          `yaml:"recoveryThrottlePct"`
	BootstrapKey       string        `yaml:"bootstrapKey"`
	ShutdownGrace      time.Duration `yaml:"shutdownGrace"`
}

// SearchConfig controls default query parameters and hard limits enforced
// by the query planner and search executor (spec.md §6).
type SearchConfig struct {
	DefaultPerPage       int `yaml:"defaultPerPage"`
	DefaultNumTypos      int `yaml:"defaultNumTypos"`
	DefaultDropTokens    int `yaml:"defaultDropTokensThreshold"`
	DefaultTypoTokens    int `yaml:"defaultTypoTokensThreshold"`
	DefaultMaxFacetVals  int `yaml:"defaultMaxFacetValues"`
	MaxSortClauses       int `yaml:"maxSortClauses"`
	MaxConcurrentQueries int `yaml:"maxConcurrentQueries"`
}

// AuthConfig controls the rate limiter window applied to per-key search and
// write traffic.
type AuthConfig struct {
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
	DefaultRateLimit int          `yaml:"defaultRateLimit"`
}

// AnalyticsConfig controls the standalone analytics service's periodic
// snapshotting of aggregated stats to PostgreSQL.
type AnalyticsConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls the search-request span tree (sample rate is
// currently advisory; every search request is traced, other requests are
// not).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment
// variable overrides. It returns a Config populated with sensible defaults
// for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "shardsearch",
			User:            "shardsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "shardsearch-group",
			Topics: KafkaTopics{
				CollectionEvents: "collection-events",
				AnalyticsEvents:  "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Manager: ManagerConfig{
			MaxMemoryRatio:      0.8,
			InitBatchSize:       1000,
			RecoveryThrottlePct: 10,
			BootstrapKey:        "",
			ShutdownGrace:       10 * time.Second,
		},
		Search: SearchConfig{
			DefaultPerPage:       10,
			DefaultNumTypos:      2,
			DefaultDropTokens:    10,
			DefaultTypoTokens:    100,
			DefaultMaxFacetVals:  10,
			MaxSortClauses:       3,
			MaxConcurrentQueries: 100,
		},
		Auth: AuthConfig{
			RateLimitWindow:  time.Minute,
			DefaultRateLimit: 100,
		},
		Analytics: AnalyticsConfig{
			SnapshotInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    true,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_STORE_HOST"); v != "" {
		cfg.Store.Host = v
	}
	if v := os.Getenv("SS_STORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Store.Port = port
		}
	}
	if v := os.Getenv("SS_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("SS_STORE_USER"); v != "" {
		cfg.Store.User = v
	}
	if v := os.Getenv("SS_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("SS_STORE_SSLMODE"); v != "" {
		cfg.Store.SSLMode = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_MANAGER_BOOTSTRAP_KEY"); v != "" {
		cfg.Manager.BootstrapKey = v
	}
	if v := os.Getenv("SS_MANAGER_MAX_MEMORY_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Manager.MaxMemoryRatio = f
		}
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

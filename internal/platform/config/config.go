// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML file of rate limits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	rlconfig "authcore/internal/ratelimit/config"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the process configuration.
type Config struct {
	Environment string `env:"AUTHCORE_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// SecretKey encrypts stored two-factor secrets.
	SecretKey string `env:"AUTHCORE_SECRET_KEY"`
	// ChallengeSecret signs login challenge tokens.
	ChallengeSecret string `env:"LOGIN_CHALLENGE_SECRET"`

	Admin    AdminConfig    `envPrefix:"ADMIN_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`

	RateLimitsFile  string        `env:"RATE_LIMITS_FILE"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
	AuditBuffer     int           `env:"AUDIT_BUFFER" envDefault:"1024"`
	TracingEnabled  bool          `env:"TRACING_ENABLED" envDefault:"false"`

	// RateLimits is DefaultConfig overlaid with RateLimitsFile.
	RateLimits *rlconfig.Config `env:"-"`
}

// AdminConfig controls the operator HTTP API.
type AdminConfig struct {
	Addr          string        `env:"ADDR" envDefault:":8081"`
	Token         string        `env:"TOKEN"`
	RatePerSecond float64       `env:"RATE_PER_SECOND" envDefault:"10"`
	Burst         int           `env:"BURST" envDefault:"20"`
	ReadTimeout   time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
}

// StoreConfig selects the durable key-value backend.
type StoreConfig struct {
	Backend string `env:"BACKEND" envDefault:"bolt"`
	// Path is the bbolt or SQLite file.
	Path string `env:"PATH" envDefault:"authcore.db"`
	// Layered keeps state in memory and shadows writes to the backend.
	Layered       bool          `env:"LAYERED" envDefault:"true"`
	ShadowTimeout time.Duration `env:"SHADOW_TIMEOUT" envDefault:"2s"`
}

type RedisConfig struct {
	URL          string        `env:"URL"`
	Namespace    string        `env:"NAMESPACE" envDefault:"authcore"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// KafkaConfig enables the audit event sink when Brokers is set.
type KafkaConfig struct {
	// Brokers is a comma separated seed list.
	Brokers string `env:"BROKERS"`
	Topic   string `env:"AUDIT_TOPIC" envDefault:"authcore.audit"`
	// Acks is "0", "1" or "all".
	Acks            string        `env:"ACKS" envDefault:"all"`
	Retries         int           `env:"RETRIES" envDefault:"3"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
}

type SessionConfig struct {
	MaxInactiveTime    time.Duration `env:"MAX_INACTIVE_TIME" envDefault:"168h"`
	MaxSessionsPerUser int           `env:"MAX_PER_USER" envDefault:"10"`
	RotateOnRefresh    bool          `env:"ROTATE_ON_REFRESH" envDefault:"true"`
}

// Load reads .env when present, parses the environment and applies the rate
// limit file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.RateLimits = rlconfig.DefaultConfig()
	if cfg.RateLimitsFile != "" {
		overrides, err := LoadRateLimits(cfg.RateLimitsFile)
		if err != nil {
			return nil, err
		}
		cfg.RateLimits.Merge(overrides)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadRateLimits decodes a YAML file shaped like ratelimit/config.Config.
func LoadRateLimits(path string) (*rlconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limits file: %w", err)
	}
	var out rlconfig.Config
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse rate limits file: %w", err)
	}
	return &out, nil
}

// IsProduction reports whether the process runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory, BackendBolt, BackendSQLite:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	if len(c.SecretKey) < 16 {
		errs = append(errs, errors.New("AUTHCORE_SECRET_KEY must be at least 16 characters"))
	}
	if len(c.ChallengeSecret) < 32 {
		errs = append(errs, errors.New("LOGIN_CHALLENGE_SECRET must be at least 32 characters"))
	}
	if c.Admin.Token == "" && c.IsProduction() {
		errs = append(errs, errors.New("ADMIN_TOKEN is required in production"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must be positive"))
	}
	if err := c.RateLimits.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Package config provides centralized configuration for the provio
// service. Values come from a YAML file, environment variables with the
// PROVIO_ prefix, and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration struct.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Audit     AuditConfig     `mapstructure:"audit"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds persistence configuration. Type selects the
// backend: "postgres" or "memory".
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds Redis configuration. When disabled, the in-memory
// rate limiter is used instead.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig holds the audit event forwarding broker settings. When
// disabled, events are only written to the local audit store.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Enabled bool   `mapstructure:"enabled"`
}

// AuthConfig holds JWT verification settings for the API surface.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// CryptoConfig holds credential encryption key material. Key must be a
// 32-byte value in production; FallbackSecret feeds the development-only
// key derivation path.
type CryptoConfig struct {
	Key            string `mapstructure:"key"`
	FallbackSecret string `mapstructure:"fallback_secret"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	Retention     time.Duration `mapstructure:"retention"`
	QueueSize     int           `mapstructure:"queue_size"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig bounds manual provisioning requests per client.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// BatchConfig tunes batch provisioning.
type BatchConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from $PROVIO_CONFIG_DIR/config.yaml (default
// /etc/provio) and PROVIO_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configDir := os.Getenv("PROVIO_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/provio"
	}
	v.SetConfigFile(fmt.Sprintf("%s/config.yaml", configDir))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PROVIO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; defaults and env vars apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "provio")
	v.SetDefault("database.postgres.user", "provio")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "provio.audit.events")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("auth.jwt_secret", "change-this-in-production")

	v.SetDefault("crypto.key", "")
	v.SetDefault("crypto.fallback_secret", "change-this-in-production")

	v.SetDefault("audit.signing_secret", "change-this-in-production")
	v.SetDefault("audit.retention", "17520h") // 2 years
	v.SetDefault("audit.queue_size", 256)
	v.SetDefault("audit.sweep_interval", "1h")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("batch.delay", "100ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

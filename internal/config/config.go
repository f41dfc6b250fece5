// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Generator   GeneratorConfig   `mapstructure:"generator"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // seconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // seconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver         string         `mapstructure:"driver"` // postgres or sqlite
	SQLitePath     string         `mapstructure:"sqlite_path"`
	MigrateOnStart bool           `mapstructure:"migrate_on_start"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
	Redis          RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig contains Redis cache connection and pool settings.
// An empty host disables caching.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// AuthConfig contains token issuance settings.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
	CookieName    string `mapstructure:"cookie_name"`
	CookieSecure  bool   `mapstructure:"cookie_secure"`
}

// TokenTTL returns the access token lifetime.
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// ProgressConfig contains XP and completion settings.
type ProgressConfig struct {
	SlideXP      int `mapstructure:"slide_xp"`
	DefaultScore int `mapstructure:"default_score"`
}

// LeaderboardConfig contains ranking page settings.
type LeaderboardConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
	CacheTTL     int `mapstructure:"cache_ttl"` // seconds, 0 disables page caching
}

// MetricsConfig contains metrics exposition settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GeneratorConfig contains the offline lesson generator settings.
type GeneratorConfig struct {
	APIURL      string  `mapstructure:"api_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxAttempts int     `mapstructure:"max_attempts"`
	RetryDelay  int     `mapstructure:"retry_delay"` // seconds
	Timeout     int     `mapstructure:"timeout"`     // seconds
	Temperature float64 `mapstructure:"temperature"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", "calculus.db")
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("auth.token_ttl_hours", 24*7)
	v.SetDefault("auth.cookie_name", "access_token")

	v.SetDefault("progress.slide_xp", 2)
	v.SetDefault("progress.default_score", 100)

	v.SetDefault("leaderboard.default_limit", 30)
	v.SetDefault("leaderboard.max_limit", 200)
	v.SetDefault("leaderboard.cache_ttl", 30)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("generator.api_url", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("generator.model", "google/gemini-2.0-flash-001")
	v.SetDefault("generator.max_attempts", 3)
	v.SetDefault("generator.retry_delay", 5)
	v.SetDefault("generator.timeout", 120)
	v.SetDefault("generator.temperature", 0.7)
}

// Load reads configuration from file and environment variables.
// A missing config file is not an error when no explicit path is given.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/calculus-api/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.sqlite_path", "SQLITE_PATH")
	_ = v.BindEnv("database.migrate_on_start", "DATABASE_MIGRATE_ON_START")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")

	// Auth configuration
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET", "SECRET_KEY")
	_ = v.BindEnv("auth.token_ttl_hours", "TOKEN_TTL_HOURS")
	_ = v.BindEnv("auth.cookie_secure", "COOKIE_SECURE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Generator configuration
	_ = v.BindEnv("generator.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("generator.model", "GENERATOR_MODEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for sqlite driver")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Leaderboard.MaxLimit < 1 {
		return fmt.Errorf("leaderboard.max_limit must be positive")
	}
	if c.Leaderboard.DefaultLimit < 1 || c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return fmt.Errorf("leaderboard.default_limit must be within [1, %d]", c.Leaderboard.MaxLimit)
	}
	if c.Generator.MaxAttempts < 1 {
		return fmt.Errorf("generator.max_attempts must be at least 1")
	}
	return nil
}

// CacheEnabled reports whether a Redis host is configured.
func (c *DatabaseConfig) CacheEnabled() bool {
	return c.Redis.Host != ""
}

// Package config loads gateway configuration from the environment and the
// optional rate-limit policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full gateway configuration.
type Config struct {
	Environment string

	Server    ServerConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	Tracing   TracingConfig
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host            string
	Port            int
	HealthPort      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig configures token verification and principal resolution.
type AuthConfig struct {
	JWTSecret  string
	AdminEmail string
	// UserCacheSize and UserCacheTTL bound the read-through user cache.
	UserCacheSize int
	UserCacheTTL  time.Duration
}

// RedisConfig configures the shared counter store.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
}

// PostgresConfig configures the user store.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RateLimitConfig configures the tier policies and the cost budget.
type RateLimitConfig struct {
	// PolicyFile optionally overrides the built-in tiers; watched for
	// changes when set.
	PolicyFile string
	// EnableGlobalCeiling turns on the per-principal cross-window ceiling.
	EnableGlobalCeiling bool
	// EnableCostBudget turns on the hourly cost ledger.
	EnableCostBudget bool
}

// BreakerConfig carries the default circuit breaker tuning.
type BreakerConfig struct {
	FailureThreshold int
	Timeout          time.Duration
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			HealthPort:      getEnvInt("HEALTH_PORT", 9090),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			AdminEmail:    getEnv("ADMIN_EMAIL", "admin@monay.com"),
			UserCacheSize: getEnvInt("USER_CACHE_SIZE", 1024),
			UserCacheTTL:  getEnvDuration("USER_CACHE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "ratelimit"),
		},
		Postgres: PostgresConfig{
			URL:          getEnv("DATABASE_URL", "postgres://localhost:5432/monay?sslmode=disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("DB_CONN_LIFETIME", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PolicyFile:          os.Getenv("RATE_LIMIT_POLICY_FILE"),
			EnableGlobalCeiling: getEnvBool("RATE_LIMIT_GLOBAL_CEILING", true),
			EnableCostBudget:    getEnvBool("RATE_LIMIT_COST_BUDGET", true),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			Timeout:          getEnvDuration("BREAKER_TIMEOUT", time.Minute),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("OTLP_ENDPOINT", "localhost:4317"),
			ServiceName: getEnv("SERVICE_NAME", "backend-core"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Server.HealthPort == c.Server.Port {
		return fmt.Errorf("HEALTH_PORT must differ from SERVER_PORT")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

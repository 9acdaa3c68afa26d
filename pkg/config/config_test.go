package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.HealthPort)
	assert.Equal(t, "admin@monay.com", cfg.Auth.AdminEmail)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.Timeout)
	assert.True(t, cfg.RateLimit.EnableGlobalCeiling)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("BREAKER_TIMEOUT", "30s")
	t.Setenv("RATE_LIMIT_GLOBAL_CEILING", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Timeout)
	assert.False(t, cfg.RateLimit.EnableGlobalCeiling)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Auth:    AuthConfig{JWTSecret: "x"},
			Server:  ServerConfig{Port: 8080, HealthPort: 9090},
			Breaker: BreakerConfig{FailureThreshold: 5, Timeout: time.Minute},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.HealthPort = cfg.Server.Port
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Breaker.FailureThreshold = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Breaker.Timeout = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

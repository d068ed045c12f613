package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable FromEnv reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_PATH", "ENV", "JWT_SECRET", "TOKEN_TTL", "LOG_LEVEL", "LOG_FORMAT",
		"DEFAULT_CURRENCY", "RATES_URL", "RATES_TIMEOUT", "RATES_CACHE_TTL",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "ALLOWED_ORIGIN",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "./data/limitly.db", cfg.DBPath)
	assert.Equal(t, "INR", cfg.DefaultCurrency)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.RatesTimeout)
	assert.Equal(t, time.Hour, cfg.RatesCacheTTL)
	assert.Equal(t, 20*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.LLMModel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.False(t, cfg.IsProd())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("RATES_TIMEOUT", "250ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.RatesTimeout)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"PORT": "eighty"}, "PORT"},
		{"bad duration", map[string]string{"LLM_TIMEOUT": "soon"}, "LLM_TIMEOUT"},
		{"unsupported currency", map[string]string{"DEFAULT_CURRENCY": "JPY"}, "DEFAULT_CURRENCY"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"prod without secret", map[string]string{"ENV": "prod"}, "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

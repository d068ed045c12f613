// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/limitly/internal/models"
)

const devJWTSecret = "limitly-dev-secret-change-me"

// Config holds the application configuration.
type Config struct {
	Port   int
	DBPath string
	Env    string // dev or prod

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel  string
	LogFormat string // text or json

	DefaultCurrency string
	RatesURL        string
	RatesTimeout    time.Duration
	RatesCacheTTL   time.Duration

	RedisAddr     string // empty disables the rate cache
	RedisPassword string
	RedisDB       int

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	AllowedOrigin string
}

// IsProd reports whether the server runs in production mode.
func (c *Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	cfg := &Config{
		Port:   intEnv("PORT", 8080, &errs),
		DBPath: getEnv("DB_PATH", "./data/limitly.db"),
		Env:    strings.ToLower(getEnv("ENV", "dev")),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  durationEnv("TOKEN_TTL", 30*24*time.Hour, &errs),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", models.DefaultCurrency)),
		RatesURL:        getEnv("RATES_URL", "https://open.er-api.com/v6/latest"),
		RatesTimeout:    durationEnv("RATES_TIMEOUT", 5*time.Second, &errs),
		RatesCacheTTL:   durationEnv("RATES_CACHE_TTL", time.Hour, &errs),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0, &errs),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMTimeout: durationEnv("LLM_TIMEOUT", 20*time.Second, &errs),

		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProd() {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		cfg.JWTSecret = devJWTSecret
	}
	if _, err := models.ParseCurrency(cfg.DefaultCurrency, ""); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_CURRENCY: %w", err))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be text or json, got %q", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

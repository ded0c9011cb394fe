/**
 * @description
 * Configuration loader for the Curio backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if critical variables (Database URL, auth key source) are missing.
 * - Load() returns a fresh Config; callers pass it down explicitly.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Worker WorkerConfig
	Poller PollerConfig
	Client ClientConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "staging", "production" or "test"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL         string
	AutoMigrate bool
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL            string
	ResultCacheTTL time.Duration
}

// AuthConfig holds the JWT key source and the trigger webhook secret
type AuthConfig struct {
	JWKSURL       string // Asymmetric keys (RS256/ES256) fetched and refreshed from this URL
	JWTSecret     string // Project HS256 secret, used when no JWKS URL is configured
	TriggerSecret string // Shared secret expected in X-Trigger-Secret on the process webhook
}

// WorkerConfig holds settings for the appraisal processing worker
type WorkerConfig struct {
	Consumer      string
	MaxAttempts   int
	BlockTimeout  time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	ClaimIdle     time.Duration
}

// PollerConfig holds the result poller's backoff settings
type PollerConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// ClientConfig holds settings for the API client used by the CLI
type ClientConfig struct {
	BaseURL string
	Token   string
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject env vars directly)
	_ = godotenv.Load()

	hostname, _ := os.Hostname()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL:         getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", "redis://localhost:6379"),
			ResultCacheTTL: getEnvAsDuration("RESULT_CACHE_TTL", 30*time.Minute),
		},
		Auth: AuthConfig{
			JWKSURL:       getEnv("AUTH_JWKS_URL", ""),
			JWTSecret:     sanitizeCredential(getEnv("AUTH_JWT_SECRET", "")),
			TriggerSecret: sanitizeCredential(getEnv("TRIGGER_SECRET", "")),
		},
		Worker: WorkerConfig{
			Consumer:      getEnv("WORKER_CONSUMER", "worker-"+hostname),
			MaxAttempts:   getEnvAsInt("WORKER_MAX_ATTEMPTS", 5),
			BlockTimeout:  getEnvAsDuration("WORKER_BLOCK_TIMEOUT", 5*time.Second),
			RetryDelay:    getEnvAsDuration("WORKER_RETRY_DELAY", 5*time.Second),
			MaxRetryDelay: getEnvAsDuration("WORKER_MAX_RETRY_DELAY", 2*time.Minute),
			ClaimIdle:     getEnvAsDuration("WORKER_CLAIM_IDLE", time.Minute),
		},
		Poller: PollerConfig{
			InitialInterval: getEnvAsDuration("POLL_INITIAL_INTERVAL", 3*time.Second),
			MaxInterval:     getEnvAsDuration("POLL_MAX_INTERVAL", 30*time.Second),
			Multiplier:      getEnvAsFloat("POLL_MULTIPLIER", 1.5),
			MaxAttempts:     getEnvAsInt("POLL_MAX_ATTEMPTS", 40),
		},
		Client: ClientConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
			Token:   sanitizeCredential(getEnv("API_TOKEN", "")),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads only the settings the CLI needs; no database is required.
func LoadClient() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{Env: getEnv("GO_ENV", "development")},
		Poller: PollerConfig{
			InitialInterval: getEnvAsDuration("POLL_INITIAL_INTERVAL", 3*time.Second),
			MaxInterval:     getEnvAsDuration("POLL_MAX_INTERVAL", 30*time.Second),
			Multiplier:      getEnvAsFloat("POLL_MULTIPLIER", 1.5),
			MaxAttempts:     getEnvAsInt("POLL_MAX_ATTEMPTS", 40),
		},
		Client: ClientConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
			Token:   sanitizeCredential(getEnv("API_TOKEN", "")),
		},
	}
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Worker.MaxAttempts < 1 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Poller.Multiplier < 1 {
		return fmt.Errorf("POLL_MULTIPLIER must be >= 1, got %v", cfg.Poller.Multiplier)
	}
	if cfg.Auth.JWKSURL == "" && cfg.Auth.JWTSecret == "" && cfg.Server.Env != "test" {
		// Warning: strictly required for Auth middleware
		fmt.Println("Warning: neither AUTH_JWKS_URL nor AUTH_JWT_SECRET is set. Protected routes will reject every request.")
	}
	if cfg.Auth.TriggerSecret == "" && cfg.Server.Env == "production" {
		return fmt.Errorf("TRIGGER_SECRET is required in production")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// Durations accept Go syntax ("3s", "250ms") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

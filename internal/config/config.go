// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Session tokens
	TokenSecret      string        // HMAC secret for session tokens; rotating it invalidates all sessions
	WebSessionTTL    time.Duration // Lifetime of web sessions (default 24h)
	MobileSessionTTL time.Duration // Lifetime of mobile sessions (default 90 days)

	// Rate limiting
	RedisAddr          string // Optional; empty means in-memory rate-limit store
	AuthRateLimit      int    // Login attempts per window per IP
	AuthRateWindow     time.Duration
	APIRateLimit       int // Authenticated requests per minute
	AnonymousRateLimit int // Anonymous requests per minute

	// Background jobs
	TickCron        string // Cron expression (with seconds field) for the global tick
	TickWorkers     int    // Bounded fan-out across maps
	MaintenanceCron string // Nightly database upkeep

	// Tier starting cash (minor units)
	TownStartingCash    int64
	CityStartingCash    int64
	CapitalStartingCash int64

	// Moderation
	ModerationURL     string
	ModerationTimeout time.Duration

	// Email
	SMTPAddr    string // host:port
	EmailSender string

	// Object storage
	AssetsBucket  string
	AssetsRegion  string
	MagicLinkBase string // Base URL embedded in magic-link emails
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BOOMTOWN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TokenSecret:      getEnv("TOKEN_SECRET", ""),
		WebSessionTTL:    getEnvAsDuration("WEB_SESSION_TTL", 24*time.Hour),
		MobileSessionTTL: getEnvAsDuration("MOBILE_SESSION_TTL", 90*24*time.Hour),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		AuthRateLimit:      getEnvAsInt("AUTH_RATE_LIMIT", 5),
		AuthRateWindow:     getEnvAsDuration("AUTH_RATE_WINDOW", time.Minute),
		APIRateLimit:       getEnvAsInt("API_RATE_LIMIT", 100),
		AnonymousRateLimit: getEnvAsInt("ANON_RATE_LIMIT", 20),

		TickCron:        getEnv("TICK_CRON", "0 */10 * * * *"),
		TickWorkers:     getEnvAsInt("TICK_WORKERS", 4),
		MaintenanceCron: getEnv("MAINTENANCE_CRON", "0 0 2 * * *"),

		TownStartingCash:    getEnvAsInt64("TOWN_STARTING_CASH", 50_000),
		CityStartingCash:    getEnvAsInt64("CITY_STARTING_CASH", 1_000_000),
		CapitalStartingCash: getEnvAsInt64("CAPITAL_STARTING_CASH", 5_000_000),

		ModerationURL:     getEnv("MODERATION_URL", ""),
		ModerationTimeout: getEnvAsDuration("MODERATION_TIMEOUT", 5*time.Second),

		SMTPAddr:    getEnv("SMTP_ADDR", ""),
		EmailSender: getEnv("EMAIL_SENDER", "noreply@boomtown.game"),

		AssetsBucket:  getEnv("ASSETS_BUCKET", ""),
		AssetsRegion:  getEnv("ASSETS_REGION", "eu-central-1"),
		MagicLinkBase: getEnv("MAGIC_LINK_BASE", "https://play.boomtown.game/auth/magic"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		if !c.DevMode {
			return fmt.Errorf("TOKEN_SECRET is required outside dev mode")
		}
		c.TokenSecret = "dev-only-token-secret"
	}
	if c.TickWorkers < 1 {
		c.TickWorkers = 1
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the governance service configuration, loaded from the
// environment with an optional .env file for local development.
type Config struct {
	Port        int
	MetricsPort int
	LogFormat   string // "text" or "json"

	// Database selection mirrors DB_TYPE: sqlite (default) or postgres
	DBType     string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// ApprovalSecret keys the HMAC over approval decisions
	ApprovalSecret string
	// ApprovalTTL is the default expiry window for new approval requests
	ApprovalTTL time.Duration

	// JWTSecret signs/verifies admin bearer tokens; JWTIssuer optionally
	// pins the iss claim
	JWTSecret string
	JWTIssuer string

	// ParamTablePath points at the optional YAML required-parameter table
	ParamTablePath string
}

// Load reads configuration from the environment. A missing .env file is
// fine; missing secrets are not.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables only")
	}

	cfg := &Config{
		Port:           getEnvIntOrDefault("PORT", 8080),
		MetricsPort:    getEnvIntOrDefault("METRICS_PORT", 9090),
		LogFormat:      GetEnvOrDefault("LOG_FORMAT", "text"),
		DBType:         GetEnvOrDefault("DB_TYPE", "sqlite"),
		DBPath:         GetEnvOrDefault("DB_PATH", ":memory:"),
		DBHost:         GetEnvOrDefault("DB_HOST", "localhost"),
		DBPort:         GetEnvOrDefault("DB_PORT", "5432"),
		DBUser:         GetEnvOrDefault("DB_USER", "governance"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         GetEnvOrDefault("DB_NAME", "governance"),
		DBSSLMode:      GetEnvOrDefault("DB_SSLMODE", "disable"),
		ApprovalSecret: os.Getenv("APPROVAL_SECRET"),
		ApprovalTTL:    time.Duration(getEnvIntOrDefault("APPROVAL_TTL_SECONDS", 3600)) * time.Second,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      os.Getenv("JWT_ISSUER"),
		ParamTablePath: os.Getenv("PARAM_TABLE_PATH"),
	}

	if cfg.ApprovalSecret == "" {
		return nil, fmt.Errorf("APPROVAL_SECRET is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// GetEnvOrDefault returns the environment variable or a fallback
func GetEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value", "key", key, "value", value)
		return fallback
	}
	return n
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// GitHub
	GithubAPIURL     string
	GithubGraphQLURL string

	// Token encryption (hex-encoded 32-byte AES key)
	EncryptionKey string

	// Queue / worker
	WorkerPollInterval time.Duration
	SweepInterval      time.Duration
	MaxRetries         int
	CompletedRetention time.Duration

	// Statistics
	PlatformRecomputeThreshold int
	StatsTimezone              string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		StorageType:                getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:                 getEnv("SQLITE_PATH", "./harvester.db"),
		PostgresURL:                getEnv("POSTGRES_URL", ""),
		GithubAPIURL:               getEnv("GITHUB_API_URL", "https://api.github.com"),
		GithubGraphQLURL:           getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		EncryptionKey:              getEnv("TOKEN_ENCRYPTION_KEY", ""),
		WorkerPollInterval:         getDurationEnv("WORKER_POLL_INTERVAL", time.Second),
		SweepInterval:              getDurationEnv("TRACKER_SWEEP_INTERVAL", 10*time.Second),
		MaxRetries:                 getIntEnv("JOB_MAX_RETRIES", 5),
		CompletedRetention:         getDurationEnv("COMPLETED_JOB_RETENTION", 24*time.Hour),
		PlatformRecomputeThreshold: getIntEnv("PLATFORM_RECOMPUTE_THRESHOLD", 10),
		StatsTimezone:              getEnv("STATS_TIMEZONE", "Asia/Seoul"),
		APIPort:                    getEnv("API_PORT", "8080"),
		APIHost:                    getEnv("API_HOST", "localhost"),
		APIEndpoint:                getEnv("API_ENDPOINT", "http://localhost:8080"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.EncryptionKey == "" {
		return &ConfigError{Field: "TOKEN_ENCRYPTION_KEY", Message: "token encryption key is required"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "JOB_MAX_RETRIES", Message: "must be at least 1"}
	}
	if c.PlatformRecomputeThreshold < 1 {
		return &ConfigError{Field: "PLATFORM_RECOMPUTE_THRESHOLD", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

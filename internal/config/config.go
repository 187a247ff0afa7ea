// Package config provides configuration management for the PinPinCloud backend.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Blob      BlobConfig
	Auth      AuthConfig
	Limits    LimitsConfig
	Download  DownloadConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
	// PublicOrigin is the client origin used to build share links, e.g. https://pinpin.cloud
	PublicOrigin   string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
// An empty Host disables the activity store.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether an activity store is configured
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// BlobConfig holds blob store configuration
type BlobConfig struct {
	Backend   string // "s3" or "local"
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	LocalRoot string

	BreakerFailures int
	BreakerTimeout  time.Duration
}

// AuthConfig holds identity provider token settings
type AuthConfig struct {
	TokenSecret  string
	Issuer       string
	RoleCacheTTL time.Duration
}

// LimitsConfig holds upload and download size limits
type LimitsConfig struct {
	MaxUploadBytes   int64
	MaxDownloadBytes int64
}

// DownloadConfig holds the download retry policy
type DownloadConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// RateLimitConfig holds rate limiting configuration (requests per second)
type RateLimitConfig struct {
	FreeTier    int
	PremiumTier int
	// Public share endpoints are limited per client address in a shared Redis window
	ShareLimit  int
	ShareWindow time.Duration
}

// WorkerConfig holds janitor worker configuration
type WorkerConfig struct {
	// Embedded runs the janitor inside the API server instead of cmd/worker
	Embedded         bool
	Interval         time.Duration
	OrphanBatchSize  int
	OrphanMaxAttempt int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			PublicOrigin:   strings.TrimRight(getEnv("PUBLIC_ORIGIN", "http://localhost:3000"), "/"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "pinpincloud"),
				User:           getEnv("POSTGRES_USER", "pinpin"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "pinpincloud"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Blob: BlobConfig{
			Backend:         getEnv("BLOB_BACKEND", "local"),
			Bucket:          getEnv("BLOB_BUCKET", "pinpincloud"),
			Region:          getEnv("BLOB_REGION", "us-east-1"),
			Endpoint:        getEnv("BLOB_ENDPOINT", ""),
			AccessKey:       getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey:       getEnv("BLOB_SECRET_KEY", ""),
			LocalRoot:       getEnv("BLOB_LOCAL_ROOT", "./data/blobs"),
			BreakerFailures: getEnvAsInt("BLOB_BREAKER_FAILURES", 5),
			BreakerTimeout:  getEnvAsDuration("BLOB_BREAKER_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			TokenSecret:  getEnv("AUTH_TOKEN_SECRET", ""),
			Issuer:       getEnv("AUTH_ISSUER", ""),
			RoleCacheTTL: getEnvAsDuration("AUTH_ROLE_CACHE_TTL", 5*time.Minute),
		},
		Limits: LimitsConfig{
			MaxUploadBytes:   getEnvAsInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
			MaxDownloadBytes: getEnvAsInt64("MAX_DOWNLOAD_BYTES", 500*1024*1024),
		},
		Download: DownloadConfig{
			MaxRetries:   getEnvAsInt("DOWNLOAD_MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("DOWNLOAD_RETRY_DELAY", time.Second),
			Multiplier:   getEnvAsFloat("DOWNLOAD_RETRY_MULTIPLIER", 2.0),
		},
		RateLimit: RateLimitConfig{
			FreeTier:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 20),
			PremiumTier: getEnvAsInt("RATE_LIMIT_PREMIUM_TIER", 100),
			ShareLimit:  getEnvAsInt("RATE_LIMIT_SHARE_LIMIT", 30),
			ShareWindow: getEnvAsDuration("RATE_LIMIT_SHARE_WINDOW", time.Minute),
		},
		Worker: WorkerConfig{
			Embedded:         getEnvAsBool("WORKER_EMBEDDED", true),
			Interval:         getEnvAsDuration("WORKER_INTERVAL", 5*time.Minute),
			OrphanBatchSize:  getEnvAsInt("WORKER_ORPHAN_BATCH_SIZE", 100),
			OrphanMaxAttempt: getEnvAsInt("WORKER_ORPHAN_MAX_ATTEMPTS", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	switch c.Blob.Backend {
	case "s3", "local":
	default:
		return fmt.Errorf("invalid BLOB_BACKEND %q: must be s3 or local", c.Blob.Backend)
	}
	if c.Limits.MaxUploadBytes <= 0 || c.Limits.MaxDownloadBytes <= 0 {
		return fmt.Errorf("size limits must be positive")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("DOWNLOAD_MAX_RETRIES must not be negative")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 gets an environment variable as an int64 with a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

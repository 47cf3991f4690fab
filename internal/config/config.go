package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	S3        S3Config
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
	MigrationsPath  string
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// S3Config holds the object store used for message attachments.
type S3Config struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string // Path prefix within bucket (e.g., "attachments/")
}

// NotifyConfig holds the notification transport endpoints. A transport
// with an empty URL is disabled.
type NotifyConfig struct {
	PushURL     string
	EmailURL    string
	TelegramURL string
	Timeout     time.Duration
}

// RateLimitConfig holds the sliding-window budgets per window.
type RateLimitConfig struct {
	Window       time.Duration
	WriteBudget  int // orders:* and messages:*
	AuthBudget   int // auth_login, auth_register, auth_forgot_password
	UploadBudget int // document upload
}

// CleanupConfig holds the orphan sweeper settings.
type CleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration // how long terminal orders stay unarchived
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "tradedesk"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		S3: S3Config{
			Enabled: getEnvAsBool("S3_ENABLED", false),
			Bucket:  getEnv("S3_BUCKET", ""),
			Region:  getEnv("S3_REGION", "us-east-1"),
			Prefix:  getEnv("S3_PREFIX", "attachments/"),
		},
		Notify: NotifyConfig{
			PushURL:     getEnv("NOTIFY_PUSH_URL", ""),
			EmailURL:    getEnv("NOTIFY_EMAIL_URL", ""),
			TelegramURL: getEnv("NOTIFY_TELEGRAM_URL", ""),
			Timeout:     time.Duration(getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:       time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			WriteBudget:  getEnvAsInt("RATE_LIMIT_WRITE_BUDGET", 40),
			AuthBudget:   getEnvAsInt("RATE_LIMIT_AUTH_BUDGET", 5),
			UploadBudget: getEnvAsInt("RATE_LIMIT_UPLOAD_BUDGET", 10),
		},
		Cleanup: CleanupConfig{
			Interval:  time.Duration(getEnvAsInt("CLEANUP_INTERVAL_SECONDS", 3600)) * time.Second,
			Retention: time.Duration(getEnvAsInt("CLEANUP_RETENTION_DAYS", 180)) * 24 * time.Hour,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	// Transport attempts must stay in single-digit seconds so a slow
	// downstream can never stall a request-scoped dispatch for long.
	if c.Notify.Timeout < time.Second || c.Notify.Timeout > 9*time.Second {
		return fmt.Errorf("notify timeout must be between 1 and 9 seconds, got %s", c.Notify.Timeout)
	}

	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("rate limit window must be at least one second")
	}

	if c.RateLimit.WriteBudget < 1 || c.RateLimit.AuthBudget < 1 || c.RateLimit.UploadBudget < 1 {
		return fmt.Errorf("rate limit budgets must be at least 1")
	}

	if c.Cleanup.Interval < time.Minute {
		return fmt.Errorf("cleanup interval must be at least one minute")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

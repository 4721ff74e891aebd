package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Billing  BillingConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	CronSecret  string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds payment gateway client configuration
type GatewayConfig struct {
	BaseURL              string
	APIKey               string
	Timeout              time.Duration // hard client timeout; a stuck call must not hold a worker slot
	MaxAttemptsPerSecond float64       // outbound charge rate cap across all workers
	AttemptBurst         int
}

// BillingConfig holds lifecycle engine tuning
type BillingConfig struct {
	PollInterval      time.Duration   // scheduler pass interval
	MaxConcurrentJobs int             // concurrent payment operations per pass
	BatchSize         int32           // due cycles fetched per pass
	MaxRetries        int             // retry budget before exhaustion
	RetryDelays       []time.Duration // escalating delay table, indexed by attempt
	Retention         time.Duration   // terminal cycles older than this are purged
	StaleClaimAfter   time.Duration   // in_progress claims older than this are released
	OverageTaxRate    decimal.Decimal // flat tax rate applied to overage invoices
	OverageDueIn      time.Duration   // supplemental invoice due date offset
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	retryDelays, err := parseRetryDelays(getEnv("BILLING_RETRY_DELAY_HOURS", "24,72,168"))
	if err != nil {
		return nil, fmt.Errorf("BILLING_RETRY_DELAY_HOURS: %w", err)
	}

	taxRate, err := decimal.NewFromString(getEnv("OVERAGE_TAX_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("OVERAGE_TAX_RATE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
			CronSecret:  getEnv("CRON_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "billing_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:              getEnv("GATEWAY_BASE_URL", "https://sandbox.gateway.example.com/v1"),
			APIKey:               getEnv("GATEWAY_API_KEY", ""),
			Timeout:              time.Duration(getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxAttemptsPerSecond: float64(getEnvAsInt("GATEWAY_MAX_ATTEMPTS_PER_SECOND", 25)),
			AttemptBurst:         getEnvAsInt("GATEWAY_ATTEMPT_BURST", 10),
		},
		Billing: BillingConfig{
			PollInterval:      time.Duration(getEnvAsInt("BILLING_POLL_INTERVAL_MINUTES", 60)) * time.Minute,
			MaxConcurrentJobs: getEnvAsInt("BILLING_MAX_CONCURRENT_JOBS", 5),
			BatchSize:         int32(getEnvAsInt("BILLING_BATCH_SIZE", 100)),
			MaxRetries:        getEnvAsInt("BILLING_MAX_RETRIES", 3),
			RetryDelays:       retryDelays,
			Retention:         time.Duration(getEnvAsInt("BILLING_RETENTION_DAYS", 90)) * 24 * time.Hour,
			StaleClaimAfter:   time.Duration(getEnvAsInt("BILLING_STALE_CLAIM_MINUTES", 15)) * time.Minute,
			OverageTaxRate:    taxRate,
			OverageDueIn:      time.Duration(getEnvAsInt("OVERAGE_DUE_DAYS", 7)) * 24 * time.Hour,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Server.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}
	if cfg.Gateway.APIKey == "" {
		return nil, fmt.Errorf("GATEWAY_API_KEY is required")
	}
	if cfg.Billing.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("BILLING_MAX_CONCURRENT_JOBS must be at least 1")
	}
	if cfg.Billing.MaxRetries < 0 {
		return nil, fmt.Errorf("BILLING_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// parseRetryDelays parses a comma-separated list of hour values into the
// escalating delay table. The table must be non-decreasing.
func parseRetryDelays(raw string) ([]time.Duration, error) {
	parts := strings.Split(raw, ",")
	delays := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		hours, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid hour value %q: %w", p, err)
		}
		if hours <= 0 {
			return nil, fmt.Errorf("hour value %d must be positive", hours)
		}
		delays = append(delays, time.Duration(hours)*time.Hour)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			return nil, fmt.Errorf("delay table must be non-decreasing, got %v", delays)
		}
	}
	if len(delays) == 0 {
		return nil, fmt.Errorf("at least one delay is required")
	}
	return delays, nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer with a default value
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

// getEnvAsBool retrieves an environment variable as a boolean with a default value
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

// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds everything the process needs to run.
type Config struct {
	// APIAddr is the listen address of the HTTP command surface.
	APIAddr string
	// APIToken authenticates the external command process.
	APIToken string

	// DBConnStr is the Postgres connection string. When DB_CONN_STR is not
	// set it is composed from the individual DB_* variables.
	DBConnStr string

	// SettlementBaseURL is the base URL of the remote coin-settlement service.
	SettlementBaseURL string
	// SettlementTimeout bounds each remote call.
	SettlementTimeout time.Duration

	// JobInterval is the fixed delay between consecutive settlement jobs.
	JobInterval time.Duration
	// QueueCapacity bounds the submission queue.
	QueueCapacity int

	// ConversionRate is the process-wide fiat-to-coin multiplier.
	ConversionRate decimal.Decimal
}

// Load reads an optional .env file and the environment, applying defaults and
// validating the result.
func Load() (*Config, error) {
	// The .env file is a development convenience; in production everything
	// comes from the real environment.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	cfg := &Config{
		APIAddr:           getEnv("API_ADDR", ":8080"),
		APIToken:          getEnv("API_TOKEN", "dev-token"),
		DBConnStr:         os.Getenv("DB_CONN_STR"),
		SettlementBaseURL: getEnv("SETTLEMENT_BASE_URL", ""),
	}

	if cfg.DBConnStr == "" {
		cfg.DBConnStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "coinsettle"),
		)
	}

	if cfg.SettlementBaseURL == "" {
		return nil, fmt.Errorf("SETTLEMENT_BASE_URL is required")
	}

	var err error
	if cfg.SettlementTimeout, err = getEnvDuration("SETTLEMENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobInterval, err = getEnvDuration("JOB_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobInterval < 0 {
		return nil, fmt.Errorf("JOB_INTERVAL must not be negative")
	}

	if cfg.QueueCapacity, err = getEnvInt("QUEUE_CAPACITY", 256); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive")
	}

	rateStr := getEnv("CONVERSION_RATE", "0.00000001")
	cfg.ConversionRate, err = decimal.NewFromString(rateStr)
	if err != nil {
		return nil, fmt.Errorf("CONVERSION_RATE %q is not a decimal: %w", rateStr, err)
	}
	if cfg.ConversionRate.Sign() <= 0 {
		return nil, fmt.Errorf("CONVERSION_RATE must be positive")
	}

	return cfg, nil
}

// getEnv reads a variable with a default fallback.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a duration: %w", key, value, err)
	}
	return d, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer: %w", key, value, err)
	}
	return n, nil
}

// Package config loads the engine's tunables from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every engine tunable plus ops-surface settings.
type Config struct {
	// Ops HTTP surface
	Port    int
	DevMode bool

	// Durable store root; holds one users/{tenantId}/... tree per tenant.
	StoreRoot string

	// Scheduler / evaluation
	CheckInterval    time.Duration
	MaxQuoteWorkers  int
	QuoteTTL         time.Duration
	CondEpsilon      float64
	QuoteFetchBudget time.Duration

	// Broker session pool
	BrokerSessionTTL time.Duration
	BrokerSessionMax int

	// Store
	LockTimeout time.Duration

	// Janitor
	RetentionDays int

	LogLevel string
}

// Load reads configuration from the environment, falling back to sensible
// defaults for every tunable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvAsInt("PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		StoreRoot:        getEnv("STORE_ROOT", "./users"),
		CheckInterval:    getEnvAsDuration("CHECK_INTERVAL", 30*time.Second),
		MaxQuoteWorkers:  getEnvAsInt("MAX_QUOTE_WORKERS", 5),
		QuoteTTL:         getEnvAsDuration("QUOTE_TTL", 10*time.Second),
		CondEpsilon:      getEnvAsFloat("COND_EPS", 0.01),
		QuoteFetchBudget: getEnvAsDuration("QUOTE_FETCH_DEADLINE", 15*time.Second),
		BrokerSessionTTL: getEnvAsDuration("BROKER_SESSION_TTL", 30*time.Minute),
		BrokerSessionMax: getEnvAsInt("BROKER_SESSION_MAX", 50),
		LockTimeout:      getEnvAsDuration("LOCK_TIMEOUT", 10*time.Second),
		RetentionDays:    getEnvAsInt("RETENTION_DAYS", 30),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the rest of the engine assumes hold.
func (c *Config) Validate() error {
	if c.StoreRoot == "" {
		return fmt.Errorf("STORE_ROOT is required")
	}
	if c.MaxQuoteWorkers < 1 {
		return fmt.Errorf("MAX_QUOTE_WORKERS must be >= 1")
	}
	if c.BrokerSessionMax < 1 {
		return fmt.Errorf("BROKER_SESSION_MAX must be >= 1")
	}
	return nil
}

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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables.
// Engine parameters (weights, caps, cost model) live in the params package;
// this covers process-level concerns only.
type Config struct {
	DataDir       string // Base directory for price CSVs and the prices database
	PricesDBPath  string // Path to the sqlite bar store (defaults to <DataDir>/prices.db)
	LogLevel      string
	Deterministic bool // DETERMINISTIC_MODE: disable all network data paths in analysts
	Seed          int64
	ServePort     int
}

// Load reads configuration from environment variables, preferring a local
// .env file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("BACKCAST_DATA_DIR", "")
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
		DataDir:       absDataDir,
		PricesDBPath:  getEnv("BACKCAST_PRICES_DB", filepath.Join(absDataDir, "prices.db")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Deterministic: getEnvAsBool("DETERMINISTIC_MODE", false),
		Seed:          int64(getEnvAsInt("BACKCAST_SEED", 42)),
		ServePort:     getEnvAsInt("BACKCAST_PORT", 8001),
	}

	return cfg, nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

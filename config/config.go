// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all configuration for the portal daemon.
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DatabaseURL string

	// Ledger configuration
	LedgerPath string
	ChainID    uint64
	Domain     uint32

	// Worker pools
	RelayerWorkers int
	IndexerWorkers int

	// Logging
	LogLevel string
	JSONLogs bool
}

// LoadConfig loads configuration from environment variables, reading .env
// first if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	chainID, err := getEnvUint("CHAIN_ID", 1399811149)
	if err != nil {
		return nil, err
	}
	domain, err := getEnvUint("DOMAIN", 1)
	if err != nil {
		return nil, err
	}
	relayerWorkers, err := getEnvUint("RELAYER_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	indexerWorkers, err := getEnvUint("INDEXER_WORKERS", 2)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "postgresql://localhost:5432/portal?sslmode=disable"),
		LedgerPath:     getEnvOrDefault("LEDGER_PATH", "data/ledger"),
		ChainID:        chainID,
		Domain:         uint32(domain),
		RelayerWorkers: int(relayerWorkers),
		IndexerWorkers: int(indexerWorkers),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		JSONLogs:       getEnvOrDefault("JSON_LOGS", "true") == "true",
	}, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return parsed, nil
}

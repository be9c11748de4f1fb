package config

import (
	"os"
	"strconv"
	"time"

	"goboot/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig `validate:"required"`
	Server   ServerConfig   `validate:"required"`
	Boot     BootConfig     `validate:"required"`
	Data     DataConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string `validate:"required"`
	SSLMode string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string
}

// BootConfig holds the default resampling parameters. A request can
// override any of them; these are the values used when it does not.
type BootConfig struct {
	Iterations int
	Workers    int
	Timeout    time.Duration
	Confidence float64
	// Seed 0 means unseeded: the service draws a seed per run and
	// records it, so the run stays reproducible after the fact.
	Seed int64
}

// DataConfig holds data ingestion settings. File is the default source
// when a request names none; it may be a local path or an http(s) URL.
// The remaining fields only apply to URL sources.
type DataConfig struct {
	File string

	// JSONPath locates the record array inside a JSON response. Empty
	// means the body itself is the array.
	JSONPath string
	// AuthToken is sent as a bearer token on remote fetches.
	AuthToken string
	// PageParam names the page query parameter; empty disables paging.
	PageParam string
	MaxPages  int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}
	config.Database = *dbConfig

	config.Server = *loadServerConfig()
	config.Boot = *loadBootConfig()
	config.Data = *loadDataConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	// DATABASE_URL is optional: without it the entrypoint falls back to
	// the in-memory run ledger.
	return &DatabaseConfig{
		URL:     os.Getenv("DATABASE_URL"),
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("SERVER_PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadBootConfig() *BootConfig {
	timeoutMS := getEnvIntOrDefault("BOOT_TIMEOUT_MS", 0)
	return &BootConfig{
		Iterations: getEnvIntOrDefault("BOOT_ITERATIONS", 1000),
		Workers:    getEnvIntOrDefault("BOOT_WORKERS", 0),
		Timeout:    time.Duration(timeoutMS) * time.Millisecond,
		Confidence: getEnvFloatOrDefault("BOOT_CONFIDENCE", 0.95),
		Seed:       getEnvInt64OrDefault("BOOT_SEED", 0),
	}
}

func loadDataConfig() *DataConfig {
	return &DataConfig{
		File:      getEnvOrDefault("DATA_FILE", ""),
		JSONPath:  getEnvOrDefault("DATA_JSON_PATH", ""),
		AuthToken: getEnvOrDefault("DATA_AUTH_TOKEN", ""),
		PageParam: getEnvOrDefault("DATA_PAGE_PARAM", ""),
		MaxPages:  getEnvIntOrDefault("DATA_MAX_PAGES", 1),
	}
}

func validateConfig(config *Config) error {
	if config.Boot.Iterations < 1 {
		return errors.ConfigInvalid("BOOT_ITERATIONS must be at least 1")
	}
	if config.Boot.Workers < 0 {
		return errors.ConfigInvalid("BOOT_WORKERS must not be negative")
	}
	if config.Boot.Confidence <= 0 || config.Boot.Confidence >= 1 {
		return errors.ConfigInvalid("BOOT_CONFIDENCE must be strictly between 0 and 1")
	}
	if config.Boot.Timeout < 0 {
		return errors.ConfigInvalid("BOOT_TIMEOUT_MS must not be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

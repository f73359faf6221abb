// Package config loads process-wide configuration from the environment,
// following the dafibh-fortuna-backend pattern: a .env file is loaded
// opportunistically, then every field is read through getEnv with an
// explicit default.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the process-wide settings the billing engine needs
// (spec §5.1's ambient process wiring).
type Config struct {
	DatabaseURL string
	Timezone    string
	LogLevel    string
}

// Load reads configuration from environment variables, loading a .env
// file first if one is present (missing .env is not an error).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Timezone:    getEnv("TIMEZONE", "America/Cancun"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the service configuration.
//
// The sequence is:
//  1. Enforce UTC to prevent timestamp drift between the event timestamps
//     Stripe sends and the guard columns we persist.
//  2. Load a .env file if present (non-fatal if missing; existing
//     environment variables are never overridden).
//  3. Process envconfig struct tags to populate the Config struct.
//  4. Validate with go-playground/validator; any failure is fatal.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

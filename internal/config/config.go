// Package config defines the configuration for the MindGarden billing sync
// service. Configuration is loaded once at process start and is immutable
// thereafter. Any missing required value aborts startup; security-relevant
// values (Stripe keys, price IDs) are never defaulted.
package config

import (
	"time"

	"mindgarden/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials so they cannot leak through logs or JSON dumps.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
}

// ServerConfig holds HTTP server settings and the public application URL
// used to build checkout/portal redirect targets.
type ServerConfig struct {
	Port       string `envconfig:"PORT" default:"8080"`
	AppBaseURL string `envconfig:"APP_BASE_URL" validate:"required,url"`
	// RequestTimeout is the soft processing budget per request. Stripe
	// expects webhook responses within a few seconds; exceeding it causes a
	// provider-side retry, which is safe under the idempotent write model.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// BillingConfig holds the Stripe credentials and the two recognized price
// IDs. Exactly these two price IDs are accepted by the plan catalog; any
// other price observed at runtime is a misconfiguration.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	PriceMonthly        string       `envconfig:"STRIPE_PRICE_MONTHLY" validate:"required"`
	PriceYearly         string       `envconfig:"STRIPE_PRICE_YEARLY" validate:"required"`
}

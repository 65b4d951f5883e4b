// Package config defines the global configuration structure for the
// Chainvoice entitlement service. Configuration is loaded once at process
// initialization and is immutable thereafter, following 12-Factor
// principles: code and configuration stay strictly separated.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup.
package config

import (
	"time"

	"chainvoice/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the entitlement service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"chainvoice-entitlement"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server      ServerConfig
	Database    DatabaseConfig
	AWS         AWSConfig
	Billing     BillingConfig
	Entitlement EntitlementConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Resource Identifiers
	DenyNotificationQueue string `envconfig:"SQS_DENY_NOTIFICATIONS"`
	SettlementQueue       string `envconfig:"SQS_SETTLEMENTS"`

	// Metric namespace for decision telemetry.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Chainvoice/Entitlement"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds payment-provider webhook credentials.
type BillingConfig struct {
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
}

// EntitlementConfig holds tunables for the entitlement core.
type EntitlementConfig struct {
	// TrialDays is the fixed trial length.
	TrialDays int `envconfig:"TRIAL_DAYS" default:"5"`

	// CountsSeparatelyChains overrides the default set of UBID-enabled
	// chains whose wallets always consume a wallet slot. Comma-separated.
	CountsSeparatelyChains []string `envconfig:"COUNTS_SEPARATELY_CHAINS"`

	// Degraded-read resolver tuning.
	ResolveMaxRetries int           `envconfig:"RESOLVE_MAX_RETRIES" default:"2"`
	ResolveRetryMin   time.Duration `envconfig:"RESOLVE_RETRY_MIN" default:"50ms"`
	ResolveRetryMax   time.Duration `envconfig:"RESOLVE_RETRY_MAX" default:"500ms"`
	StaleSnapshotTTL  time.Duration `envconfig:"STALE_SNAPSHOT_TTL" default:"15m"`
}

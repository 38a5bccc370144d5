package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `envconfig:"APP_NAME" default:"PackPulse"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	// Daily pulse grant.
	PulseAmount   int64         `envconfig:"PULSE_AMOUNT" default:"500"`
	PulseCooldown time.Duration `envconfig:"PULSE_COOLDOWN" default:"24h"`

	// Balance cache entries are derived from the ledger; the TTL bounds how
	// long a stale entry can survive a missed invalidation.
	BalanceCacheTTL time.Duration `envconfig:"BALANCE_CACHE_TTL" default:"24h"`

	// Stripe integration. Amounts are in currency minor units (cents).
	StripeSecretKey        string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency         string        `envconfig:"STRIPE_CURRENCY" default:"usd"`
	StripeMinimumAmount    int64         `envconfig:"STRIPE_MINIMUM_AMOUNT" default:"50"`
	StripeWebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"300s"`
	PaymentCacheTTL        time.Duration `envconfig:"PAYMENT_CACHE_TTL" default:"48h"`
	WebhookDedupTTL        time.Duration `envconfig:"WEBHOOK_DEDUP_TTL" default:"1h"`
	GatewayTimeout         time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.PulseAmount <= 0 {
		return Config{}, fmt.Errorf("PULSE_AMOUNT must be positive, got %d", cfg.PulseAmount)
	}
	if cfg.PulseCooldown <= 0 {
		return Config{}, fmt.Errorf("PULSE_COOLDOWN must be positive, got %s", cfg.PulseCooldown)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

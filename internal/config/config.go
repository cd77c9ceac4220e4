package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the billing service.
type Config struct {
	Port                int
	DBPath              string
	BaseURL             string
	LogLevel            string
	LogFormat           string
	CatalogPath         string
	StripeSecretKey     string
	StripeWebhookSecret string
	RequestTimeout      time.Duration
	CheckoutRateLimit   int // requests per account per minute
	SessionCleanup      time.Duration
	Backup              Backup
}

// Backup configures encrypted database snapshots to S3-compatible storage.
type Backup struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
	Retention  time.Duration
}

// Load reads configuration from environment variables. A .env file is
// loaded if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("BILLING_PORT", 8090)
	if err != nil {
		return nil, err
	}
	rateLimit, err := envOrDefaultInt("BILLING_CHECKOUT_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	timeout, err := envOrDefaultDuration("BILLING_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cleanup, err := envOrDefaultDuration("BILLING_SESSION_CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	retention, err := envOrDefaultDuration("BILLING_BACKUP_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                port,
		DBPath:              envOrDefault("BILLING_DB_PATH", "billing.db"),
		BaseURL:             envOrDefault("BILLING_BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		LogLevel:            envOrDefault("BILLING_LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("BILLING_LOG_FORMAT", "text"),
		CatalogPath:         strings.TrimSpace(os.Getenv("BILLING_CATALOG_PATH")),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		RequestTimeout:      timeout,
		CheckoutRateLimit:   rateLimit,
		SessionCleanup:      cleanup,
		Backup: Backup{
			Endpoint:   strings.TrimSpace(os.Getenv("BILLING_BACKUP_S3_ENDPOINT")),
			Bucket:     strings.TrimSpace(os.Getenv("BILLING_BACKUP_S3_BUCKET")),
			Region:     envOrDefault("BILLING_BACKUP_S3_REGION", "us-east-1"),
			AccessKey:  strings.TrimSpace(os.Getenv("BILLING_BACKUP_S3_ACCESS_KEY")),
			SecretKey:  strings.TrimSpace(os.Getenv("BILLING_BACKUP_S3_SECRET_KEY")),
			Prefix:     strings.TrimSpace(os.Getenv("BILLING_BACKUP_S3_PREFIX")),
			Passphrase: os.Getenv("BILLING_BACKUP_PASSPHRASE"),
			Retention:  retention,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate billing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("BILLING_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("BILLING_REQUEST_TIMEOUT must be greater than 0, got %s", c.RequestTimeout)
	}
	if c.CheckoutRateLimit <= 0 {
		return fmt.Errorf("BILLING_CHECKOUT_RATE_LIMIT must be greater than 0, got %d", c.CheckoutRateLimit)
	}
	if c.SessionCleanup <= 0 {
		return fmt.Errorf("BILLING_SESSION_CLEANUP_INTERVAL must be greater than 0, got %s", c.SessionCleanup)
	}

	if c.Backup.Retention <= 0 {
		return fmt.Errorf("BILLING_BACKUP_RETENTION must be greater than 0, got %s", c.Backup.Retention)
	}

	parsedBaseURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("BILLING_BASE_URL must be a valid URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return fmt.Errorf("BILLING_BASE_URL must use http or https scheme")
	}
	if parsedBaseURL.Host == "" {
		return fmt.Errorf("BILLING_BASE_URL must include a host")
	}
	return nil
}

// RequireStripe reports missing Stripe credentials. Commands that never
// talk to Stripe (migrate, account) skip it.
func (c *Config) RequireStripe() error {
	var missing []string
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

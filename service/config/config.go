package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/brojonat/wldsell/service/commission"
)

var payoutAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// World App configuration used to verify wallet payments
	WorldApp WorldAppConfig

	// Sale configuration
	PayoutDestinationAddress string
	ReferenceTTL             time.Duration
	OrphanGracePeriod        time.Duration
	SweepInterval            time.Duration
	CommissionSchedule       commission.Schedule

	// Live price configuration
	Price PriceConfig
}

// WorldAppConfig holds the Developer Portal credentials.
type WorldAppConfig struct {
	AppID          string
	DevPortalKey   string
	DevPortalURL   string
	RequestTimeout time.Duration
}

// PriceConfig describes where the live WLD price comes from.
type PriceConfig struct {
	SourceURL string
	JQ        string
	CacheTTL  time.Duration
}

const (
	defaultPriceSourceURL = "https://api.coingecko.com/api/v3/simple/price?ids=worldcoin-wld&vs_currencies=usd"
	defaultPriceJQ        = `.["worldcoin-wld"].usd`
	defaultDevPortalURL   = "https://developer.worldcoin.org"
)

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "wldsell-sweep")

	// World App configuration
	cfg.WorldApp.AppID = os.Getenv("WORLD_APP_ID")
	if cfg.WorldApp.AppID == "" {
		errs = append(errs, fmt.Errorf("WORLD_APP_ID is required"))
	}
	cfg.WorldApp.DevPortalKey = os.Getenv("DEV_PORTAL_API_KEY")
	if cfg.WorldApp.DevPortalKey == "" {
		errs = append(errs, fmt.Errorf("DEV_PORTAL_API_KEY is required"))
	}
	cfg.WorldApp.DevPortalURL = strings.TrimRight(getEnvOrDefault("DEV_PORTAL_URL", defaultDevPortalURL), "/")
	if timeout, err := parseDuration("DEV_PORTAL_TIMEOUT", "15s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.WorldApp.RequestTimeout = timeout
	}

	// Sale configuration
	cfg.PayoutDestinationAddress = os.Getenv("PAYOUT_DESTINATION_ADDRESS")
	if cfg.PayoutDestinationAddress == "" {
		errs = append(errs, fmt.Errorf("PAYOUT_DESTINATION_ADDRESS is required"))
	} else if !payoutAddressRegex.MatchString(cfg.PayoutDestinationAddress) {
		errs = append(errs, fmt.Errorf("PAYOUT_DESTINATION_ADDRESS must be a 0x-prefixed 20-byte hex address"))
	}

	if ttl, err := parseDuration("REFERENCE_TTL", "30m"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReferenceTTL = ttl
	}

	if grace, err := parseDuration("ORPHAN_GRACE_PERIOD", "15m"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.OrphanGracePeriod = grace
	}

	if interval, err := parseDuration("SWEEP_INTERVAL", "5m"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SweepInterval = interval
	}

	schedule, err := commission.ParseSchedule(getEnvOrDefault("COMMISSION_TIERS", commission.DefaultScheduleSpec))
	if err != nil {
		errs = append(errs, fmt.Errorf("COMMISSION_TIERS: %w", err))
	} else {
		cfg.CommissionSchedule = schedule
	}

	// Live price configuration
	cfg.Price.SourceURL = getEnvOrDefault("PRICE_SOURCE_URL", defaultPriceSourceURL)
	cfg.Price.JQ = getEnvOrDefault("PRICE_JQ", defaultPriceJQ)
	if ttl, err := parseDuration("PRICE_CACHE_TTL", "30s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.Price.CacheTTL = ttl
	}

	if cfg.ReferenceTTL > 0 && cfg.ReferenceTTL < time.Minute {
		errs = append(errs, fmt.Errorf("REFERENCE_TTL (%v) must be at least 1m", cfg.ReferenceTTL))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.WorldApp.AppID == "" {
		errs = append(errs, fmt.Errorf("WorldApp.AppID is required"))
	}

	if c.WorldApp.DevPortalKey == "" {
		errs = append(errs, fmt.Errorf("WorldApp.DevPortalKey is required"))
	}

	if !payoutAddressRegex.MatchString(c.PayoutDestinationAddress) {
		errs = append(errs, fmt.Errorf("PayoutDestinationAddress must be a 0x-prefixed 20-byte hex address"))
	}

	if c.ReferenceTTL < time.Minute {
		errs = append(errs, fmt.Errorf("ReferenceTTL must be at least 1 minute"))
	}

	if c.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("SweepInterval must be at least 1 second"))
	}

	if len(c.CommissionSchedule) == 0 {
		errs = append(errs, fmt.Errorf("CommissionSchedule is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

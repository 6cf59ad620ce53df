package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	RabbitMQURL         string // escrow events; empty disables publishing
	ServiceKey          string // X-Service-Key expected on the action surface
	AdminKeyHash        string // bcrypt hash of the operator key
	FrontendURLEndsWith string

	Escrow EscrowConfig
}

// EscrowConfig carries the tunable lane and audit parameters.
type EscrowConfig struct {
	TrustThreshold float64       // minimum seller trust (0-100) for the instant lane
	ValueThreshold float64       // card value at or above which verification is required
	StaleLockAfter time.Duration // locked escrows older than this are reported as stale
	TrustCacheTTL  time.Duration
}

const (
	defaultTrustThreshold = 80
	defaultValueThreshold = 500
	defaultStaleLockAfter = 7 * 24 * time.Hour
	defaultTrustCacheTTL  = 5 * time.Minute
)

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ESCROW_TRUST_THRESHOLD", defaultTrustThreshold)
	viper.SetDefault("ESCROW_VALUE_THRESHOLD", defaultValueThreshold)
	viper.SetDefault("ESCROW_STALE_LOCK_AFTER", defaultStaleLockAfter)
	viper.SetDefault("TRUST_CACHE_TTL", defaultTrustCacheTTL)

	cfg := &Config{
		Env:                 viper.GetString("APP_ENV"),
		Port:                viper.GetString("PORT"),
		DatabaseURL:         viper.GetString("DATABASE_URL"),
		RedisURL:            viper.GetString("REDIS_URL"),
		RabbitMQURL:         viper.GetString("RABBITMQ_URL"),
		ServiceKey:          viper.GetString("SERVICE_KEY"),
		AdminKeyHash:        viper.GetString("ADMIN_KEY_HASH"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		Escrow: EscrowConfig{
			TrustThreshold: viper.GetFloat64("ESCROW_TRUST_THRESHOLD"),
			ValueThreshold: viper.GetFloat64("ESCROW_VALUE_THRESHOLD"),
			StaleLockAfter: viper.GetDuration("ESCROW_STALE_LOCK_AFTER"),
			TrustCacheTTL:  viper.GetDuration("TRUST_CACHE_TTL"),
		},
	}
	if err := cfg.Escrow.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects thresholds that would make lane routing meaningless.
func (e EscrowConfig) Validate() error {
	if e.TrustThreshold < 0 || e.TrustThreshold > 100 {
		return fmt.Errorf("ESCROW_TRUST_THRESHOLD must be within 0..100, got %v", e.TrustThreshold)
	}
	if e.ValueThreshold <= 0 {
		return fmt.Errorf("ESCROW_VALUE_THRESHOLD must be positive, got %v", e.ValueThreshold)
	}
	if e.StaleLockAfter <= 0 {
		return fmt.Errorf("ESCROW_STALE_LOCK_AFTER must be positive, got %s", e.StaleLockAfter)
	}
	if e.TrustCacheTTL <= 0 {
		return fmt.Errorf("TRUST_CACHE_TTL must be positive, got %s", e.TrustCacheTTL)
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Package config loads service configuration from the environment (and an
// optional .env file).
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" default:"development"`
	GRPCAddr string `env:"GRPC_ADDR" default:":8080"`
	HTTPAddr string `env:"HTTP_ADDR" default:":8081"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST" default:"localhost"`
	DBPort      string `env:"DB_PORT" default:"5432"`
	DBUser      string `env:"DB_USER" default:"postgres"`
	DBPassword  string `env:"DB_PASSWORD" default:"postgres"`
	DBName      string `env:"DB_NAME" default:"tradejournal"`

	RedisURL string `env:"REDIS_URL"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`

	BinanceBaseURL    string        `env:"BINANCE_BASE_URL" default:"https://api.binance.com"`
	BinanceTimeout    time.Duration `env:"BINANCE_TIMEOUT" default:"10s"`
	BinanceRatePerSec float64       `env:"BINANCE_RATE_PER_SEC" default:"10"`
	PriceCacheTTL     time.Duration `env:"PRICE_CACHE_TTL" default:"15s"`
	KlineCacheTTL     time.Duration `env:"KLINE_CACHE_TTL" default:"5m"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePricePro      string `env:"STRIPE_PRICE_PRO"`
	StripePriceElite    string `env:"STRIPE_PRICE_ELITE"`
	CheckoutSuccessURL  string `env:"CHECKOUT_SUCCESS_URL" default:"http://localhost:5173/billing/success"`
	CheckoutCancelURL   string `env:"CHECKOUT_CANCEL_URL" default:"http://localhost:5173/billing"`

	FeeSchedulePath string `env:"FEE_SCHEDULE_PATH"`

	HTTPRatePerSec float64 `env:"HTTP_RATE_PER_SEC" default:"20"`
	HTTPRateBurst  int     `env:"HTTP_RATE_BURST" default:"40"`
	MaxUploadBytes int64   `env:"MAX_UPLOAD_BYTES" default:"5242880"`
}

// Load reads the configuration from the environment, falling back to a .env
// file when one exists in the working directory.
func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StripeEnabled reports whether checkout and webhooks are configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != "" && c.StripeWebhookSecret != ""
}

func validate(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if cfg.BinanceRatePerSec <= 0 {
		return errors.New("BINANCE_RATE_PER_SEC must be positive")
	}
	if cfg.HTTPRatePerSec <= 0 || cfg.HTTPRateBurst <= 0 {
		return errors.New("HTTP_RATE_PER_SEC and HTTP_RATE_BURST must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if (cfg.StripeSecretKey == "") != (cfg.StripeWebhookSecret == "") {
		return errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set together")
	}
	if cfg.StripeSecretKey != "" && (cfg.StripePricePro == "" || cfg.StripePriceElite == "") {
		return errors.New("STRIPE_PRICE_PRO and STRIPE_PRICE_ELITE are required when Stripe is enabled")
	}
	return nil
}

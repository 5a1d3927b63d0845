// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// The deploy templating leaves these sentinels behind when a value was never
// filled in. Starting up with them would send garbage to the warehouse
// service, so they fail loading outright.
const (
	placeholderBaseURL = "[api_url]"
	placeholderAPIKey  = "[apikey]"
)

var (
	ErrMissingBaseURL = errors.New("config: API_URL is not configured")
	ErrMissingAPIKey  = errors.New("config: APIKEY is not configured")
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	CatalogBaseURL string
	CatalogAPIKey  string
	LookupTimeout  time.Duration

	DefaultVATRate decimal.Decimal
}

// Load reads the environment. A .env file in the working directory is merged
// in when present; a missing file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName:    getenv("SERVICE_NAME", "invoiceform"),
		Env:            getenv("ENV", "dev"),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		CatalogBaseURL: strings.TrimRight(os.Getenv("API_URL"), "/"),
		CatalogAPIKey:  os.Getenv("APIKEY"),
	}

	rate, err := decimal.NewFromString(getenv("VAT_AMOUNT", "21"))
	if err != nil {
		return Config{}, fmt.Errorf("config: parse VAT_AMOUNT: %w", err)
	}
	if rate.IsNegative() {
		return Config{}, fmt.Errorf("config: VAT_AMOUNT must not be negative")
	}
	cfg.DefaultVATRate = rate

	timeout, err := time.ParseDuration(getenv("LOOKUP_TIMEOUT", "5s"))
	if err != nil {
		return Config{}, fmt.Errorf("config: parse LOOKUP_TIMEOUT: %w", err)
	}
	cfg.LookupTimeout = timeout

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CatalogBaseURL == "" || c.CatalogBaseURL == placeholderBaseURL {
		return ErrMissingBaseURL
	}
	if c.CatalogAPIKey == "" || c.CatalogAPIKey == placeholderAPIKey {
		return ErrMissingAPIKey
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

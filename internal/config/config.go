// Package config содержит логику чтения конфигурации сервиса servimarket.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса servimarket.
type Config struct {
	RunAddress         string  `env:"RUN_ADDRESS"`
	DatabaseURI        string  `env:"DATABASE_URI"`
	GatewayAccessToken string  `env:"MP_ACCESS_TOKEN"`
	GatewayCurrency    string  `env:"MP_CURRENCY_ID"`
	CheckoutBaseURL    string  `env:"MP_CHECKOUT_BASE"`
	FrontendURL        string  `env:"FRONTEND_URL"`
	PublicBaseURL      string  `env:"PUBLIC_BASE_URL"`
	PlatformFeeRate    float64 `env:"PLATFORM_FEE_PERCENT"`
	AuthSecret         string  `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayToken := cfg.GatewayAccessToken

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAccessToken, "t", "", "payment gateway access token")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayToken != "" {
		cfg.GatewayAccessToken = envGatewayToken
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.GatewayCurrency == "" {
		cfg.GatewayCurrency = "PEN"
	}
	if cfg.CheckoutBaseURL == "" {
		cfg.CheckoutBaseURL = "https://www.mercadopago.com/checkout/v1/redirect?pref_id="
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://" + cfg.RunAddress
	}
	if cfg.PlatformFeeRate == 0 {
		cfg.PlatformFeeRate = 0.05
	}
	if cfg.PlatformFeeRate < 0 || cfg.PlatformFeeRate > 1 {
		return nil, fmt.Errorf("platform fee rate %v out of range [0, 1]", cfg.PlatformFeeRate)
	}

	return cfg, nil
}

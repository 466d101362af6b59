// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/visusnet/trade-republic-mcp-server-sub001/internal/keystore"
)

// Config is the daemon's environment-driven configuration.
type Config struct {
	PhoneNumber string `env:"TRADE_REPUBLIC_PHONE_NUMBER"`
	PIN         string `env:"TRADE_REPUBLIC_PIN"`

	APIBaseURL string `env:"TRADE_REPUBLIC_API_URL" envDefault:"https://api.traderepublic.com"`
	StreamURL  string `env:"TRADE_REPUBLIC_WS_URL" envDefault:"wss://api.traderepublic.com"`
	Locale     string `env:"TRADE_REPUBLIC_LOCALE" envDefault:"en"`

	// KeysPath defaults to ~/.trade-republic-mcp/keys.json when empty.
	KeysPath string `env:"TRADE_REPUBLIC_KEYS_PATH"`

	ISINs []string `env:"WATCH_ISINS" envSeparator:","`

	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.KeysPath == "" {
		path, err := keystore.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.KeysPath = path
	}
	return cfg, nil
}

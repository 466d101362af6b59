package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.traderepublic.com", cfg.APIBaseURL)
	assert.Equal(t, "wss://api.traderepublic.com", cfg.StreamURL)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.NotEmpty(t, cfg.KeysPath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TRADE_REPUBLIC_PHONE_NUMBER", "+4917012345667")
	t.Setenv("TRADE_REPUBLIC_PIN", "1234")
	t.Setenv("TRADE_REPUBLIC_API_URL", "https://api.example.test")
	t.Setenv("TRADE_REPUBLIC_KEYS_PATH", "/tmp/keys.json")
	t.Setenv("WATCH_ISINS", "US0378331005,DE0007164600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "+4917012345667", cfg.PhoneNumber)
	assert.Equal(t, "1234", cfg.PIN)
	assert.Equal(t, "https://api.example.test", cfg.APIBaseURL)
	assert.Equal(t, "/tmp/keys.json", cfg.KeysPath)
	assert.Equal(t, []string{"US0378331005", "DE0007164600"}, cfg.ISINs)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "dry_run: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "USD", cfg.QuoteCurrency)
	assert.Equal(t, "https://api.exchange.coinbase.com", cfg.Coinbase.RestURL)
	assert.Equal(t, time.Second, cfg.DecideInterval())
	assert.Equal(t, 5*time.Second, cfg.BootstrapTimeout())
	assert.Equal(t, time.Minute, cfg.VolumeTTL())
	assert.Equal(t, 30*time.Second, cfg.BalanceRefresh())
	assert.Equal(t, 1e-8, cfg.Trade.Tolerance)
	assert.Equal(t, "pusher:decisions", cfg.Redis.Stream)
}

func TestLoad_Values(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
quote_currency: BTC
trade:
  min_profit_rate: 0.0001
  tolerance: 0.000001
timings:
  decide_interval_ms: 250
redis:
  addr: localhost:6379
  stream: custom:stream
`))
	require.NoError(t, err)

	assert.Equal(t, "BTC", cfg.QuoteCurrency)
	assert.Equal(t, 0.0001, cfg.Trade.MinProfitRate)
	assert.Equal(t, 250*time.Millisecond, cfg.DecideInterval())
	assert.Equal(t, "custom:stream", cfg.Redis.Stream)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("COINBASE_KEY", "env-key")
	t.Setenv("COINBASE_PASSPHRASE", "env-pass")

	cfg, err := Load(writeConfig(t, `
coinbase:
  key: file-key
  secret: file-secret
`))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Coinbase.Key)
	assert.Equal(t, "file-secret", cfg.Coinbase.Secret)
	assert.Equal(t, "env-pass", cfg.Coinbase.Passphrase)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

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

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bitunix:
  api_key: key
  secret_key: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://fapi.bitunix.com", cfg.Bitunix.BaseURL)
	assert.Equal(t, "ETHUSDT", cfg.Bitunix.Symbol)
	assert.Equal(t, "USDT", cfg.Bitunix.MarginCoin)
	assert.Equal(t, 18, cfg.Strategy.Lookback)
	assert.Equal(t, 20, cfg.Strategy.Leverage)
	assert.InDelta(t, 0.25, cfg.Strategy.WalletFraction, 1e-12)
	assert.Equal(t, 100, cfg.Exchange.BarLimit)
	assert.Equal(t, "1h", cfg.Exchange.Timeframe)
	assert.Equal(t, 180*time.Second, cfg.Notify.FlushInterval)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.LoopInterval)
	assert.Equal(t, StatsBackendJSON, cfg.Stats.Backend)
}

func TestLoad_ReadsSecretsFromEnvironment(t *testing.T) {
	t.Setenv("TRADER_BITUNIX_API_KEY", "env-key")
	t.Setenv("TRADER_BITUNIX_SECRET_KEY", "env-secret")
	t.Setenv("TRADER_NOTIFY_WEBHOOK_URL", "https://example.invalid/hook")

	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Bitunix.APIKey)
	assert.Equal(t, "env-secret", cfg.Bitunix.SecretKey)
	assert.Equal(t, "https://example.invalid/hook", cfg.Notify.WebhookURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	path := writeConfig(t, `
strategy:
  lookback: 0
  leverage: 0
  wallet_fraction: 1.5
stats:
  backend: redis
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "strategy.lookback")
	assert.Contains(t, msg, "strategy.leverage")
	assert.Contains(t, msg, "strategy.wallet_fraction")
	assert.Contains(t, msg, "stats.backend")
	assert.Contains(t, msg, "bitunix.api_key")
}

func TestValidate_SimulationDoesNotNeedCredentials(t *testing.T) {
	path := writeConfig(t, `
execution:
  simulation: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Execution.Simulation)
}

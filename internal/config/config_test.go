package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
store:
  market_db: /tmp/market.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, "/tmp/market.db", cfg.Store.MarketDB)
	assert.Equal(t, "data/backtest", cfg.Store.ResultsDir)
	assert.InDelta(t, 1_000_000, cfg.Backtest.InitialCash, 1e-9)
	assert.Equal(t, 5, cfg.Backtest.RebalanceDays)
	assert.Equal(t, 7, cfg.Backtest.MinPeriodSamples)
	assert.Equal(t, "1d", cfg.Ingest.Interval)
	assert.Equal(t, "binance", cfg.Ingest.Source)
	assert.Equal(t, 1600, cfg.Visual.WidthPx)
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
ingest:
  enabled: true
  symbols: []
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.symbols")

	path = writeConfig(t, `
backtest:
  financing_rates:
    JPYCNH: 1.5
`)
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "financing_rates")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestFinancingRateLookup(t *testing.T) {
	cfg := Default()
	assert.InDelta(t, 0.01843, cfg.Backtest.FinancingRate("JPYCNH"), 1e-9)
	assert.InDelta(t, 0.05, cfg.Backtest.FinancingRate("EURCNH"), 1e-9)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"marketdata/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		EnvTiingoAPIKey, EnvAlphaVantageAPIKey, EnvORATSAPIKey, EnvFREDAPIKey,
		EnvMassiveAPIKey, EnvCacheDir, EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func Test_LoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "A missing file falls back to defaults")

	assert.Equal(t, "./cache", cfg.CacheDir)
	assert.Equal(t, "XYNS", cfg.Exchange)
	assert.Equal(t, "massive", cfg.Equity)
	assert.Equal(t, "0 */15 * * * *", cfg.Refresh.Cron)
	assert.Equal(t, 4, cfg.Refresh.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Vendors.Tiingo.APIKey)
}

func Test_LoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_ORATS_TOKEN", "from-expansion")

	path := writeConfig(t, `
cache_dir: /var/cache/marketdata
exchange: XNAS
equity: alpha_vantage
vendors:
  tiingo:
    api_key: tiingo-file
    page_limit: 2500
  alpha_vantage:
    api_key: av-file
    timeout: 90s
  orats:
    api_key: ${TEST_ORATS_TOKEN}
fetch:
  page_delay: 15s
  retry_attempts: 3
refresh:
  cron: "0 0 * * * *"
  concurrency: 2
  jobs:
    - symbol: BTC-USD
      class: crypto
      start: 2024-01-01T00:00:00Z
    - symbol: AAPL
      class: equity
      start: 2024-01-02T14:30:00Z
log:
  level: debug
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/marketdata", cfg.CacheDir)
	assert.Equal(t, "XNAS", cfg.Exchange)
	assert.Equal(t, "alpha_vantage", cfg.Equity)
	assert.Equal(t, "tiingo-file", cfg.Vendors.Tiingo.APIKey)
	assert.Equal(t, 2500, cfg.Vendors.Tiingo.PageLimit)
	assert.Equal(t, 90*time.Second, cfg.Vendors.AlphaVantage.Timeout)
	assert.Equal(t, "from-expansion", cfg.Vendors.ORATS.APIKey, "Should expand ${VAR} references")
	assert.Equal(t, 15*time.Second, cfg.Fetch.PageDelay)
	assert.Equal(t, 3, cfg.Fetch.RetryAttempts)
	require.Len(t, cfg.Refresh.Jobs, 2)
	assert.Equal(t, model.Crypto, cfg.Refresh.Jobs[0].Class)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Refresh.Jobs[0].Start.UTC())

	adapter := cfg.Vendors.Tiingo.Adapter()
	assert.Equal(t, "tiingo-file", adapter.APIKey)
	assert.Equal(t, 2500, adapter.PageLimit)
}

func Test_LoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTiingoAPIKey, "tiingo-env")
	t.Setenv(EnvMassiveAPIKey, "massive-env")
	t.Setenv(EnvFREDAPIKey, "fred-env")
	t.Setenv(EnvCacheDir, "/tmp/env-cache")

	path := writeConfig(t, "cache_dir: /from/file\nvendors:\n  tiingo:\n    api_key: tiingo-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiingo-env", cfg.Vendors.Tiingo.APIKey, "Environment wins over the file")
	assert.Equal(t, "massive-env", cfg.Vendors.Massive.APIKey)
	assert.Equal(t, "fred-env", cfg.Vendors.FRED.APIKey)
	assert.Equal(t, "/tmp/env-cache", cfg.CacheDir)
}

// Test_Validate tests rejection of invalid configurations
func Test_Validate(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		description string
	}{
		{name: "Unknown exchange", body: "exchange: XXXX\n", description: "Should reject unregistered exchanges"},
		{name: "Unknown equity vendor", body: "equity: yahoo\n", description: "Should reject unknown equity adapters"},
		{name: "Bad log level", body: "log:\n  level: loud\n", description: "Should reject unknown log levels"},
		{name: "Negative retries", body: "fetch:\n  retry_attempts: -1\n", description: "Should reject negative retries"},
		{name: "Bad vendor URL", body: "vendors:\n  fred:\n    base_url: not-a-url\n", description: "Should reject malformed URLs"},
		{
			name:        "Job without symbol",
			body:        "refresh:\n  jobs:\n    - class: crypto\n      start: 2024-01-01T00:00:00Z\n",
			description: "Should validate every job",
		},
		{
			name:        "Job with unknown class",
			body:        "refresh:\n  jobs:\n    - symbol: X\n      class: bonds\n      start: 2024-01-01T00:00:00Z\n",
			description: "Should reject unknown asset classes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadAndValidate(writeConfig(t, tt.body))
			assert.Error(t, err, tt.description)
		})
	}
}

func Test_LoadMalformedYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "cache_dir: [unterminated\n"))
	assert.Error(t, err)
}

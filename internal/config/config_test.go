package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.AlphaVantage.PerDay)
	assert.Equal(t, 250, cfg.FMP.PerDay)
	assert.Equal(t, 24, cfg.Cache.TTLHours)
	assert.True(t, cfg.Fallback.DemoEnabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": "9090", "request_timeout_sec": 45},
		"alphavantage": {"enabled": false},
		"cache": {"ttl_hours": 6}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 45, cfg.Server.RequestTimeoutSec)
	assert.False(t, cfg.AlphaVantage.Enabled)
	assert.Equal(t, 6, cfg.Cache.TTLHours)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 250, cfg.FMP.PerDay)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": "9090"}}`), 0o600))

	t.Setenv("PORT", "7000")
	t.Setenv("ALPHAVANTAGE_API_KEY", "secret-av")
	t.Setenv("FMP_ENABLED", "false")
	t.Setenv("FMP_PER_DAY", "100")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("FALLBACK_DEMO_ENABLED", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "secret-av", cfg.AlphaVantage.APIKey)
	assert.False(t, cfg.FMP.Enabled)
	assert.Equal(t, 100, cfg.FMP.PerDay)
	assert.True(t, cfg.Log.Pretty)
	assert.False(t, cfg.Fallback.DemoEnabled)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X", "TRUE")
	v, ok := envBool("X")
	assert.True(t, v)
	assert.True(t, ok)

	t.Setenv("X", "n")
	v, ok = envBool("X")
	assert.False(t, v)
	assert.True(t, ok)

	t.Setenv("X", "maybe")
	_, ok = envBool("X")
	assert.False(t, ok)
}

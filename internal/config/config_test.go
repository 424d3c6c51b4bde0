package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Credentials.Username = "trader"
	cfg.Credentials.Password = "hunter2secret"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials.username")
}

func TestValidateArrayLengthMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.Market.TargetItems = []string{"A", "B"}
	cfg.Market.MaxPricePerUnit = []float64{1.0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_price_per_unit")
}

func TestValidateNegativePriceCap(t *testing.T) {
	cfg := validConfig()
	cfg.Market.TargetItems = []string{"A"}
	cfg.Market.MaxPricePerUnit = []float64{-1.0}
	require.Error(t, cfg.Validate())
}

func TestValidateZeroPriceCapAllowed(t *testing.T) {
	// A zero cap is a valid way to disable purchases of an item.
	cfg := validConfig()
	cfg.Market.TargetItems = []string{"A"}
	cfg.Market.MaxPricePerUnit = []float64{0}
	require.NoError(t, cfg.Validate())
}

func TestValidateMarginBounds(t *testing.T) {
	for _, margin := range []float64{0, 1, -0.5, 1.5} {
		cfg := validConfig()
		cfg.Buying.MinProfitMargin = margin
		assert.Error(t, cfg.Validate(), "margin %v", margin)
	}
}

func TestValidatePacingOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.Pacing.ActionDelayMinMs = 800
	cfg.Pacing.ActionDelayMaxMs = 300
	require.Error(t, cfg.Validate())
}

func TestValidateBlockedWaitShorterThanNormal(t *testing.T) {
	cfg := validConfig()
	cfg.Risk.NormalWaitSeconds = 120
	cfg.Risk.BlockedWaitSeconds = 60
	require.Error(t, cfg.Validate())
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TRADER_USER", "envuser")
	t.Setenv("TRADER_PASS", "envpass-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
credentials:
  username: ${TRADER_USER}
  password: ${TRADER_PASS}
buying:
  min_profit_margin: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "envuser", cfg.Credentials.Username)
	assert.Equal(t, "envpass-secret", cfg.Credentials.Password)
	assert.Equal(t, 0.2, cfg.Buying.MinProfitMargin)
	// Unmentioned sections keep their defaults.
	assert.Equal(t, 60, cfg.Risk.NormalWaitSeconds)
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Credentials.Password = "supersecretpassword"
	out := cfg.String()
	assert.NotContains(t, out, "supersecretpassword")
	assert.Contains(t, out, "supe")
}

func TestMaxUnitPriceFor(t *testing.T) {
	cfg := validConfig()
	price, ok := cfg.MaxUnitPriceFor("Pain Killers")
	require.True(t, ok)
	assert.Equal(t, 25.0, price)

	_, ok = cfg.MaxUnitPriceFor("Unknown Thing")
	assert.False(t, ok)
}

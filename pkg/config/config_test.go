package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
api:
  currency: DOGE
  faucet: true
dryRun: true
simulator:
  seed: 7
  balance: "10"
  houseEdge: "1"
limits:
  stopLoss: "0.5"
  maxStake: "0.25"
  maxBets: 1000
  maxDuration: 30m
runner:
  idleInterval: 10ms
strategy: strike
strategies:
  - strike:
      zThreshold: -3
      attackBets: 12
  - hunter:
      referenceProbability: 2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "bot.yaml", sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "DOGE", cfg.API.Currency)
	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.True(t, cfg.API.Faucet)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, int64(7), cfg.Simulator.Seed)
	assert.Equal(t, 10*time.Millisecond, cfg.Runner.IdleInterval)
	assert.Equal(t, 3, cfg.Runner.MaxIdleTicks)

	limits, err := cfg.SessionLimits()
	require.NoError(t, err)
	assert.True(t, limits.StopLoss.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, limits.MaxStake.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, limits.TakeProfit.IsZero())
	assert.Equal(t, int64(1000), limits.MaxBets)
	assert.Equal(t, 30*time.Minute, limits.MaxDuration)

	entry, err := cfg.StrategyEntry()
	require.NoError(t, err)
	assert.Equal(t, "strike", entry.ID)
	assert.Equal(t, -3, entry.Params["zThreshold"])
	assert.Equal(t, 12, entry.Params["attackBets"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DUCKDICE_API_KEY", "key-from-env")
	t.Setenv("DUCKDICE_CURRENCY", "LTC")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DUCKDICE_DRY_RUN", "true")

	cfg, err := Load(writeFile(t, "bot.yaml", "api:\n  currency: BTC\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.API.APIKey)
	assert.Equal(t, "LTC", cfg.API.Currency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.DryRun)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "DUCKDICE_STRATEGY=flat\n")
	t.Setenv("DUCKDICE_STRATEGY", "")
	os.Unsetenv("DUCKDICE_STRATEGY")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "flat", cfg.Strategy)
}

func TestLoad_UnconfiguredStrategyUsesDefaults(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "flat"
	entry, err := cfg.StrategyEntry()
	require.NoError(t, err)
	assert.Equal(t, "flat", entry.ID)
	assert.Empty(t, entry.Params)
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"empty strategy":     func(c *Config) { c.Strategy = " " },
		"no currency":        func(c *Config) { c.API.Currency = "" },
		"bad stop loss":      func(c *Config) { c.Limits.StopLoss = "abc" },
		"negative max stake": func(c *Config) { c.Limits.MaxStake = "-1" },
		"bad house edge":     func(c *Config) { c.Simulator.HouseEdge = "100" },
		"zero sim balance":   func(c *Config) { c.DryRun = true; c.Simulator.Balance = "0" },
		"negative idle":      func(c *Config) { c.Runner.IdleInterval = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

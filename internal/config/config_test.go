package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns defaults fleshed out with the fields Validate requires.
func validConfig() Config {
	cfg := Defaults()
	cfg.Assets = []string{"BTC"}
	cfg.Venues = map[string]VenueConfig{
		"alpha": {BaseURL: "https://alpha.example", Tier: 1, TakerFeeBps: 10},
		"beta":  {BaseURL: "https://beta.example", Tier: 2, TakerFeeBps: 10},
	}
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "unsupported mode"},
		{"no assets", func(c *Config) { c.Assets = nil }, "at least one asset"},
		{"one venue", func(c *Config) { delete(c.Venues, "beta") }, "at least two venues"},
		{"zero cycle", func(c *Config) { c.CycleInterval = Duration{} }, "cycle_interval"},
		{"weights off", func(c *Config) { c.Qualifier.Scoring.SpreadWeight = 0.9 }, "weights must sum to 1"},
		{"bad sizing bounds", func(c *Config) { c.Qualifier.Sizing.MaxSizeUSD = 1 }, "sizing bounds"},
		{"bad kelly confidence", func(c *Config) { c.Qualifier.Sizing.KellyConfidence = 1.5 }, "kelly_confidence"},
		{"zero concurrency", func(c *Config) { c.Scheduler.MaxConcurrent = 0 }, "max_concurrent"},
		{"bad decay", func(c *Config) { c.Scheduler.PriorityDecay = 1.5 }, "priority_decay"},
		{"zero sell retries", func(c *Config) { c.Executor.SellRetryAttempts = 0 }, "sell_retry_attempts"},
		{"zero risk caps", func(c *Config) { c.Risk.DailyVolumeCapUSD = 0 }, "risk caps"},
		{"bad venue tier", func(c *Config) {
			v := c.Venues["alpha"]
			v.Tier = 9
			c.Venues["alpha"] = v
		}, "tier must be 0-3"},
		{"live without base url", func(c *Config) {
			c.Mode = "live"
			v := c.Venues["alpha"]
			v.BaseURL = ""
			c.Venues["alpha"] = v
		}, "base_url required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "scan"
assets = ["BTC", "ETH"]
cycle_interval = "5s"

[venues.alpha]
base_url = "https://alpha.example"
tier = 1

[venues.beta]
base_url = "https://beta.example"
tier = 2

[qualifier]
min_net_spread_pct = 0.75

[risk]
daily_volume_cap_usd = 5000.0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Assets)
	assert.Equal(t, 5*time.Second, cfg.CycleInterval.Duration)
	assert.Equal(t, 0.75, cfg.Qualifier.MinNetSpreadPct)
	assert.Equal(t, 5000.0, cfg.Risk.DailyVolumeCapUSD)
	// Untouched sections keep their defaults.
	assert.Equal(t, 500.0, cfg.Risk.DailyLossCapUSD)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrent)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "paper"
assets = ["BTC"]

[venues.alpha]
tier = 1

[venues.beta]
tier = 2
`), 0o600))

	t.Setenv("CROSSARB_MODE", "scan")
	t.Setenv("CROSSARB_VENUE_ALPHA_API_KEY", "k-from-env")
	t.Setenv("CROSSARB_RISK_DAILY_LOSS_CAP_USD", "123.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, "k-from-env", cfg.Venues["alpha"].APIKey)
	assert.Equal(t, 123.5, cfg.Risk.DailyLossCapUSD)
}

func TestRiskProviderUpdateAndReload(t *testing.T) {
	p := NewRiskProvider(RiskConfig{DailyVolumeCapUSD: 1000, DailyLossCapUSD: 100, MaxConsecutiveLosses: 3})
	assert.Equal(t, 1000.0, p.Current().DailyVolumeCapUSD)

	p.Update(RiskConfig{DailyVolumeCapUSD: 2000, DailyLossCapUSD: 200, MaxConsecutiveLosses: 5})
	assert.Equal(t, 2000.0, p.Current().DailyVolumeCapUSD)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[risk]
daily_volume_cap_usd = 750.0
daily_loss_cap_usd = 75.0
`), 0o600))
	require.NoError(t, p.Reload(path))

	caps := p.Current()
	assert.Equal(t, 750.0, caps.DailyVolumeCapUSD)
	assert.Equal(t, 75.0, caps.DailyLossCapUSD)
	// Fields absent from the file carry over from the caps in effect.
	assert.Equal(t, 5, caps.MaxConsecutiveLosses)
}

func TestRiskProviderReloadRejectsBadCaps(t *testing.T) {
	p := NewRiskProvider(RiskConfig{DailyVolumeCapUSD: 1000, DailyLossCapUSD: 100, MaxConsecutiveLosses: 3})

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[risk]
daily_volume_cap_usd = -1.0
`), 0o600))

	assert.Error(t, p.Reload(path))
	assert.Equal(t, 1000.0, p.Current().DailyVolumeCapUSD)
}

package config

import (
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/toml"
)

// RiskProvider exposes the current risk caps. The qualifier and scheduler read
// through it so operators can tighten caps without a restart.
type RiskProvider struct {
	current atomic.Pointer[RiskConfig]
}

// NewRiskProvider creates a provider seeded with the given caps.
func NewRiskProvider(initial RiskConfig) *RiskProvider {
	p := &RiskProvider{}
	p.current.Store(&initial)
	return p
}

// Current returns the caps in effect right now.
func (p *RiskProvider) Current() RiskConfig {
	return *p.current.Load()
}

// Update atomically replaces the caps in effect.
func (p *RiskProvider) Update(caps RiskConfig) {
	p.current.Store(&caps)
}

// Reload re-reads only the [risk] table from the config file at path and
// swaps it in. Other sections of the file are ignored.
func (p *RiskProvider) Reload(path string) error {
	var partial struct {
		Risk RiskConfig `toml:"risk"`
	}
	partial.Risk = p.Current()
	if _, err := toml.DecodeFile(path, &partial); err != nil {
		return fmt.Errorf("config: reload risk caps: %w", err)
	}
	if partial.Risk.DailyVolumeCapUSD <= 0 || partial.Risk.DailyLossCapUSD <= 0 {
		return fmt.Errorf("config: reload risk caps: caps must be positive")
	}
	p.Update(partial.Risk)
	return nil
}

package backtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-backtest/internal/risk"
	"trend-backtest/internal/strategy"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 200, cfg.LongWindow)
	assert.Equal(t, 20, cfg.ATRWindow)
	assert.Equal(t, 0.02, cfg.RiskFrac)
	assert.Equal(t, 100000.0, cfg.InitialEquity)
	assert.True(t, cfg.UseTrailingStop)
	assert.False(t, cfg.StrictWindows)
	assert.Equal(t, 201, cfg.EffectiveCapacity())

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, strategy.KindTrendFollowing, p.Kind())
}

func TestConfig_EffectiveCapacity(t *testing.T) {
	cfg := withLong(50)
	assert.Equal(t, 200, cfg.EffectiveCapacity())

	cfg.Capacity = 64
	assert.Equal(t, 64, cfg.EffectiveCapacity())
	assert.NoError(t, cfg.Validate())

	cfg.Capacity = 40
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig), "capacity below long_window")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero long window", func(c *Config) { c.LongWindow = 0 }},
		{"zero atr window", func(c *Config) { c.ATRWindow = 0 }},
		{"zero risk", func(c *Config) { c.RiskFrac = 0 }},
		{"risk above one", func(c *Config) { c.RiskFrac = 1.5 }},
		{"zero equity", func(c *Config) { c.InitialEquity = 0 }},
		{"negative capacity", func(c *Config) { c.Capacity = -1 }},
		{"unknown strategy", func(c *Config) { c.Strategy = "mean_reversion" }},
		{"ma cross without short", func(c *Config) { c.Strategy = "ma_cross" }},
		{"ma cross short >= long", func(c *Config) { c.Strategy = "ma_cross"; c.ShortWindow = 200 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)

			_, err = NewDriver(cfg, risk.DefaultATRSizer())
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestNewDriver_NilSizer(t *testing.T) {
	_, err := NewDriver(DefaultConfig(), nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestConfig_MACrossParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = "ma_cross"
	cfg.ShortWindow = 50
	require.NoError(t, cfg.Validate())

	p, err := cfg.Params()
	require.NoError(t, err)
	mc, ok := p.(strategy.MACrossParams)
	require.True(t, ok)
	assert.Equal(t, 50, mc.ShortWindow)
	assert.Equal(t, 200, mc.LongWindow)
}

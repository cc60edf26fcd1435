package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"trend-backtest/internal/indicator"
	"trend-backtest/internal/marketdata/replay"
	"trend-backtest/internal/strategy"
)

var (
	// ErrInvalidConfig wraps every configuration problem found before a run.
	ErrInvalidConfig = errors.New("invalid backtest config")

	// ErrWindowExceedsData is returned in strict mode when an indicator
	// window can never fill from the supplied bars.
	ErrWindowExceedsData = errors.New("indicator window exceeds data length")

	// ErrUnorderedBars is returned when bar timestamps are not strictly increasing.
	ErrUnorderedBars = replay.ErrUnorderedBars
)

// Config holds everything that shapes a run. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	Strategy        string  `json:"strategy" yaml:"strategy"` // trend_following | ma_cross
	ShortWindow     int     `json:"short_window,omitempty" yaml:"short_window"`
	LongWindow      int     `json:"long_window" yaml:"long_window"`
	ATRWindow       int     `json:"atr_window" yaml:"atr_window"`
	RiskFrac        float64 `json:"risk_frac" yaml:"risk_frac"`
	InitialEquity   float64 `json:"initial_equity" yaml:"initial_equity"`
	UseTrailingStop bool    `json:"use_trailing_stop" yaml:"use_trailing_stop"`
	BreakevenR      float64 `json:"breakeven_r" yaml:"breakeven_r"`
	TrailR          float64 `json:"trail_r" yaml:"trail_r"`

	// Capacity of each symbol's ring buffer. 0 picks max(200, LongWindow+1, ATRWindow+1).
	Capacity int `json:"capacity,omitempty" yaml:"capacity"`

	// StrictWindows rejects runs whose bars cannot fill LongWindow or ATRWindow+1.
	StrictWindows bool `json:"strict_windows,omitempty" yaml:"strict_windows"`
}

// DefaultConfig returns the stock trend-following setup.
func DefaultConfig() Config {
	p := strategy.DefaultTrendParams()
	return Config{
		Strategy:        strategy.KindTrendFollowing.String(),
		LongWindow:      p.LongWindow,
		ATRWindow:       p.ATRWindow,
		RiskFrac:        p.RiskFrac,
		InitialEquity:   100000,
		UseTrailingStop: p.UseTrailingStop,
		BreakevenR:      p.BreakevenR,
		TrailR:          p.TrailR,
	}
}

// Params builds the strategy variant named by Strategy.
func (c Config) Params() (strategy.Params, error) {
	kind, err := strategy.ParseKind(c.Strategy)
	if err != nil {
		return nil, err
	}
	trend := strategy.TrendParams{
		LongWindow:      c.LongWindow,
		ATRWindow:       c.ATRWindow,
		RiskFrac:        c.RiskFrac,
		UseTrailingStop: c.UseTrailingStop,
		BreakevenR:      c.BreakevenR,
		TrailR:          c.TrailR,
	}
	switch kind {
	case strategy.KindMACross:
		return strategy.MACrossParams{TrendParams: trend, ShortWindow: c.ShortWindow}, nil
	default:
		return trend, nil
	}
}

// EffectiveCapacity is the ring buffer size a run will use.
func (c Config) EffectiveCapacity() int {
	if c.Capacity > 0 {
		return c.Capacity
	}
	n := indicator.DefaultCapacity
	if c.LongWindow+1 > n {
		n = c.LongWindow + 1
	}
	if c.ATRWindow+1 > n {
		n = c.ATRWindow + 1
	}
	return n
}

// Validate checks the config without looking at any data.
func (c Config) Validate() error {
	p, err := c.Params()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !(c.InitialEquity > 0) || math.IsInf(c.InitialEquity, 0) {
		return fmt.Errorf("%w: initial_equity must be positive and finite, got %v", ErrInvalidConfig, c.InitialEquity)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	capacity := c.EffectiveCapacity()
	if c.LongWindow > capacity || c.ATRWindow+1 > capacity {
		return fmt.Errorf("%w: capacity %d cannot hold long_window %d and atr_window+1 %d",
			ErrInvalidConfig, capacity, c.LongWindow, c.ATRWindow+1)
	}
	return nil
}

// checkWindows is the strict-mode data check.
func (c Config) checkWindows(n int) error {
	if c.LongWindow > n {
		return fmt.Errorf("%w: long_window %d > %d bars", ErrWindowExceedsData, c.LongWindow, n)
	}
	if c.ATRWindow+1 > n {
		return fmt.Errorf("%w: atr_window+1 %d > %d bars", ErrWindowExceedsData, c.ATRWindow+1, n)
	}
	return nil
}

// JSON returns the config encoded for run records.
func (c Config) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

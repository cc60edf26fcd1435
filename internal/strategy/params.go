package strategy

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed set of strategy variants.
type Kind uint8

const (
	KindTrendFollowing Kind = iota + 1
	KindMACross
)

func (k Kind) String() string {
	switch k {
	case KindTrendFollowing:
		return "trend_following"
	case KindMACross:
		return "ma_cross"
	default:
		return "unknown"
	}
}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trend_following", "trend-following", "trend", "":
		return KindTrendFollowing, nil
	case "ma_cross", "ma-cross", "macross":
		return KindMACross, nil
	default:
		return 0, fmt.Errorf("%w: unknown strategy kind %q", ErrInvalidParams, s)
	}
}

// ErrInvalidParams is returned for structurally invalid strategy parameters.
var ErrInvalidParams = errors.New("invalid strategy params")

// Params is implemented only by the parameter records of this package, one
// per Kind. The variant is always explicit; it is never inferred from which
// fields happen to be set.
type Params interface {
	Kind() Kind
	Validate() error
	trend() TrendParams
	shortWindow() int
}

// TrendParams configures KindTrendFollowing: long while close > MA(LongWindow).
type TrendParams struct {
	LongWindow      int     `json:"long_window" yaml:"long_window"`
	ATRWindow       int     `json:"atr_window" yaml:"atr_window"`
	RiskFrac        float64 `json:"risk_frac" yaml:"risk_frac"`
	UseTrailingStop bool    `json:"use_trailing_stop" yaml:"use_trailing_stop"`
	BreakevenR      float64 `json:"breakeven_r" yaml:"breakeven_r"`
	TrailR          float64 `json:"trail_r" yaml:"trail_r"`
}

// DefaultTrendParams returns the stock trend-following configuration.
func DefaultTrendParams() TrendParams {
	return TrendParams{
		LongWindow:      200,
		ATRWindow:       20,
		RiskFrac:        0.02,
		UseTrailingStop: true,
		BreakevenR:      1.0,
		TrailR:          2.0,
	}
}

func (p TrendParams) Kind() Kind         { return KindTrendFollowing }
func (p TrendParams) trend() TrendParams { return p }
func (p TrendParams) shortWindow() int   { return 0 }

// Validate checks windows and the risk fraction.
func (p TrendParams) Validate() error {
	if p.LongWindow < 1 {
		return fmt.Errorf("%w: long_window must be >= 1, got %d", ErrInvalidParams, p.LongWindow)
	}
	if p.ATRWindow < 1 {
		return fmt.Errorf("%w: atr_window must be >= 1, got %d", ErrInvalidParams, p.ATRWindow)
	}
	if !(p.RiskFrac > 0 && p.RiskFrac <= 1) {
		return fmt.Errorf("%w: risk_frac must be in (0, 1], got %v", ErrInvalidParams, p.RiskFrac)
	}
	if p.BreakevenR < 0 || p.TrailR < 0 {
		return fmt.Errorf("%w: breakeven_r and trail_r must be >= 0", ErrInvalidParams)
	}
	return nil
}

// MACrossParams configures KindMACross: the trend filter of TrendParams plus
// a short average that must sit above the long one to enter. The position is
// closed when the short average crosses back below the long one.
type MACrossParams struct {
	TrendParams `yaml:",inline"`

	ShortWindow int `json:"short_window" yaml:"short_window"`
}

// DefaultMACrossParams returns a 50/200 cross with the default risk settings.
func DefaultMACrossParams() MACrossParams {
	return MACrossParams{TrendParams: DefaultTrendParams(), ShortWindow: 50}
}

func (p MACrossParams) Kind() Kind       { return KindMACross }
func (p MACrossParams) shortWindow() int { return p.ShortWindow }

// Validate checks the embedded trend params and the short window.
func (p MACrossParams) Validate() error {
	if err := p.TrendParams.Validate(); err != nil {
		return err
	}
	if p.ShortWindow < 1 || p.ShortWindow >= p.LongWindow {
		return fmt.Errorf("%w: short_window must be in [1, long_window), got %d", ErrInvalidParams, p.ShortWindow)
	}
	return nil
}

// Windows returns the short, long and ATR periods the variant needs.
// The short period is 0 for variants without one.
func Windows(p Params) (short, long, atr int) {
	t := p.trend()
	return p.shortWindow(), t.LongWindow, t.ATRWindow
}

// Warmup is the number of bars that must be seen before an entry is allowed.
func Warmup(p Params) int {
	return p.trend().LongWindow
}

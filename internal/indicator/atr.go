package indicator

import "math"

// TrueRange averages the classic true range over genuine OHLC data:
//
//	TR_i = max(high_i − low_i, |high_i − close_{i−1}|, |low_i − close_{i−1}|)
//
// The mean is simple, not Wilder-smoothed.
type TrueRange struct{}

func (TrueRange) Name() string { return "ATR" }

func (TrueRange) Estimate(high, low, close []float64) float64 {
	n := len(close) - 1
	if n < 1 || len(high) != len(close) || len(low) != len(close) {
		return 0
	}
	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += trueRange(high[i], low[i], close[i-1])
	}
	return sum / float64(n)
}

// SyntheticSpread approximates high and low as close·(1±Pct) and ignores the
// recorded high/low. It exists for feeds that only carry close prices.
type SyntheticSpread struct {
	Pct float64 // e.g. 0.001 for ±0.1%
}

func (s SyntheticSpread) Name() string { return "ATR_SYNTH" }

func (s SyntheticSpread) Estimate(_, _, close []float64) float64 {
	n := len(close) - 1
	if n < 1 {
		return 0
	}
	sum := 0.0
	for i := 1; i <= n; i++ {
		c := close[i]
		sum += trueRange(c*(1+s.Pct), c*(1-s.Pct), close[i-1])
	}
	return sum / float64(n)
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

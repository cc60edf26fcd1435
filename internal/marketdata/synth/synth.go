// Package synth generates deterministic synthetic bar series for tests,
// demos and strategy sanity checks.
package synth

import (
	"math"
	"math/rand"
	"time"

	"trend-backtest/internal/model"
)

// DefaultSpread is the half-range of a synthetic bar around its close.
const DefaultSpread = 0.001

// Constant returns n closes all equal to price.
func Constant(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// Linear returns n closes moving in equal steps from `from` to `to`
// inclusive.
func Linear(n int, from, to float64) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = from
		return out
	}
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

// TrendThenCrash rises linearly from `from` to peak over up bars, then
// falls linearly to bottom over the following crash bars.
func TrendThenCrash(up int, from, peak float64, crash int, bottom float64) []float64 {
	out := Linear(up, from, peak)
	step := (bottom - peak) / float64(crash)
	for j := 1; j <= crash; j++ {
		out = append(out, peak+step*float64(j))
	}
	return out
}

// RandomWalk returns n closes of a geometric random walk with per-bar drift
// and volatility, reproducible for a given seed.
func RandomWalk(n int, start, drift, vol float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price *= math.Exp(drift + vol*rng.NormFloat64())
	}
	return out
}

// Bars turns closes into bars spaced step apart from start. Open equals
// close; high and low sit spread above and below it.
func Bars(closes []float64, start time.Time, step time.Duration, spread float64) []model.Bar {
	times := make([]time.Time, len(closes))
	for i := range times {
		times[i] = start.Add(time.Duration(i) * step)
	}
	return BarsAt(closes, times, spread)
}

// BarsAt turns closes into bars stamped with the given times, which must
// be at least as many as closes.
func BarsAt(closes []float64, times []time.Time, spread float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			TS:     times[i],
			Open:   c,
			High:   c * (1 + spread),
			Low:    c * (1 - spread),
			Close:  c,
			Volume: 1,
		}
	}
	return bars
}

// Daily is Bars with a one-day step and DefaultSpread.
func Daily(closes []float64, start time.Time) []model.Bar {
	return Bars(closes, start, 24*time.Hour, DefaultSpread)
}

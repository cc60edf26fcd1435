// Package indicator computes moving averages and ATR for many symbols
// directly from per-symbol ring buffers.
//
// Each symbol is owned by a SymbolPool: one ringbuf.Series plus scratch
// buffers sized to the series capacity, so steady-state calculations never
// allocate. Pools live in a slice inside the Engine and are addressed by
// PoolID; the symbol map is only consulted at registration time.
//
// A value of 0 is the "unavailable" sentinel for every indicator: it is
// returned when the series holds fewer bars than the period needs, or when
// the inputs produce a non-finite result.
package indicator

// VolatilityEstimator turns the trailing period+1 high/low/close triples
// (oldest first) into an average range over the last period bars.
// Implementations must not retain or modify the slices.
type VolatilityEstimator interface {
	Name() string
	Estimate(high, low, close []float64) float64
}

// Snapshot is the cached indicator set for one symbol at one price.
type Snapshot struct {
	Price   float64 `json:"price"`
	ShortMA float64 `json:"short_ma"`
	LongMA  float64 `json:"long_ma"`
	ATR     float64 `json:"atr"`

	shortPeriod, longPeriod, atrPeriod int
}

// LongReady reports whether the long (trend-filter) average is available.
func (s Snapshot) LongReady() bool { return s.LongMA > 0 }

// ShortReady reports whether the short average is available.
func (s Snapshot) ShortReady() bool { return s.ShortMA > 0 }

// ATRReady reports whether the volatility estimate is available.
func (s Snapshot) ATRReady() bool { return s.ATR > 0 }

func (s Snapshot) sameQuery(short, long, atr int) bool {
	return s.shortPeriod == short && s.longPeriod == long && s.atrPeriod == atr
}

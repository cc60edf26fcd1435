package indicator

import (
	"math"

	"trend-backtest/internal/model"
)

const (
	DefaultCapacity = 200
	DefaultEpsilon  = 0.01
)

// Options configures an Engine.
type Options struct {
	// Capacity is the ring buffer size of every pool (default 200).
	Capacity int

	// Epsilon is the absolute price tolerance for the Indicators
	// short-circuit (default 0.01).
	Epsilon float64

	// DisableCache forces Indicators to recompute on every call.
	DisableCache bool

	// Volatility estimates ATR (default TrueRange).
	Volatility VolatilityEstimator
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Epsilon <= 0 {
		o.Epsilon = DefaultEpsilon
	}
	if o.Volatility == nil {
		o.Volatility = TrueRange{}
	}
	return o
}

// PoolID indexes a SymbolPool inside its Engine.
type PoolID int

// Stats counts how Indicators queries were served.
type Stats struct {
	Computed uint64 `json:"computed"`
	CacheHit uint64 `json:"cache_hit"`
}

// Engine is a registry of symbol pools plus the indicator math over them.
// Designed for single-goroutine usage; no locks. Run independent
// engines in parallel rather than sharing one.
type Engine struct {
	opts  Options
	pools []SymbolPool
	index map[string]PoolID
	stats Stats
}

// NewEngine creates an engine with no registered symbols.
func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:  opts.withDefaults(),
		index: make(map[string]PoolID, 8),
	}
}

// Options returns the effective options (defaults applied).
func (e *Engine) Options() Options { return e.opts }

// Register returns the pool for symbol, creating it on first use.
func (e *Engine) Register(symbol string) PoolID {
	if id, ok := e.index[symbol]; ok {
		return id
	}
	id := PoolID(len(e.pools))
	e.pools = append(e.pools, newSymbolPool(symbol, e.opts.Capacity))
	e.index[symbol] = id
	return id
}

// Lookup resolves a registered symbol.
func (e *Engine) Lookup(symbol string) (PoolID, bool) {
	id, ok := e.index[symbol]
	return id, ok
}

// Pool returns the pool for id. The pointer is only valid until the next
// Register call.
func (e *Engine) Pool(id PoolID) *SymbolPool {
	return &e.pools[id]
}

// Len returns the number of registered pools.
func (e *Engine) Len() int { return len(e.pools) }

// Stats returns query counters.
func (e *Engine) Stats() Stats { return e.stats }

// Push appends a bar to the pool's series.
func (e *Engine) Push(id PoolID, b model.Bar) {
	e.pools[id].push(b)
}

// CalculateMA returns the simple moving average of the last period closes,
// or 0 when fewer than period bars are held.
func (e *Engine) CalculateMA(id PoolID, period int) float64 {
	return e.pools[id].ma(period)
}

// CalculateATR returns the mean range over the last period bars, using the
// trailing period+1 bars. It returns 0 when fewer than period+1 bars are held.
func (e *Engine) CalculateATR(id PoolID, period int) float64 {
	return e.pools[id].atr(period, e.opts.Volatility)
}

// Indicators returns the short MA, long MA and ATR for the pool at the given
// price. A zero period skips that indicator. When price is within Epsilon
// of the previous query's price and the previous result was complete, the
// cached snapshot is returned without recomputation.
func (e *Engine) Indicators(id PoolID, price float64, shortPeriod, longPeriod, atrPeriod int) Snapshot {
	p := &e.pools[id]

	if !e.opts.DisableCache && p.snapSet &&
		p.snap.sameQuery(shortPeriod, longPeriod, atrPeriod) &&
		math.Abs(price-p.lastPrice) < e.opts.Epsilon {
		e.stats.CacheHit++
		return p.snap
	}

	snap := Snapshot{
		Price:       price,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		atrPeriod:   atrPeriod,
	}
	if shortPeriod > 0 {
		snap.ShortMA = p.ma(shortPeriod)
	}
	if longPeriod > 0 {
		snap.LongMA = p.ma(longPeriod)
	}
	if atrPeriod > 0 {
		snap.ATR = p.atr(atrPeriod, e.opts.Volatility)
	}
	e.stats.Computed++

	p.lastPrice = price
	p.snap = snap
	// Only complete results are reused; a partial warm-up result would
	// otherwise stick while the price stays flat.
	p.snapSet = complete(snap)
	return snap
}

func complete(s Snapshot) bool {
	if s.shortPeriod > 0 && !s.ShortReady() {
		return false
	}
	if s.longPeriod > 0 && !s.LongReady() {
		return false
	}
	if s.atrPeriod > 0 && !s.ATRReady() {
		return false
	}
	return true
}

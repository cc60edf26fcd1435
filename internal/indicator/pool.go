package indicator

import (
	"trend-backtest/internal/model"
	"trend-backtest/internal/ringbuf"
)

const maCacheSize = 4

type maEntry struct {
	period int
	value  float64
}

// SymbolPool owns everything the engine keeps for one symbol.
// Its scratch buffers are private: a pool must only ever be used by one
// caller at a time.
type SymbolPool struct {
	Symbol string

	series *ringbuf.Series

	// scratch, each with capacity == series capacity
	closes []float64
	highs  []float64
	lows   []float64

	lastMA    [maCacheSize]maEntry
	maNext    int
	lastATR   float64
	lastPrice float64

	snap    Snapshot
	snapSet bool
}

func newSymbolPool(symbol string, capacity int) SymbolPool {
	s := ringbuf.New(capacity)
	n := s.Cap()
	return SymbolPool{
		Symbol: symbol,
		series: s,
		closes: make([]float64, 0, n),
		highs:  make([]float64, 0, n),
		lows:   make([]float64, 0, n),
	}
}

// Series exposes the pool's ring buffer for read access.
func (p *SymbolPool) Series() *ringbuf.Series { return p.series }

// LastMA returns the cached moving average for period, if one was computed.
func (p *SymbolPool) LastMA(period int) (float64, bool) {
	for _, e := range p.lastMA {
		if e.period == period && period > 0 {
			return e.value, true
		}
	}
	return 0, false
}

// LastATR returns the most recently computed ATR (0 if none).
func (p *SymbolPool) LastATR() float64 { return p.lastATR }

// LastPrice returns the price of the most recent Indicators query.
func (p *SymbolPool) LastPrice() float64 { return p.lastPrice }

func (p *SymbolPool) push(b model.Bar) {
	p.series.Push(b)
}

func (p *SymbolPool) ma(period int) float64 {
	closes, ok := p.series.Window(ringbuf.FieldClose, period, p.closes)
	if !ok {
		return 0
	}
	v := finite(mean(closes))
	p.storeMA(period, v)
	return v
}

func (p *SymbolPool) storeMA(period int, v float64) {
	for i := range p.lastMA {
		if p.lastMA[i].period == period {
			p.lastMA[i].value = v
			return
		}
	}
	p.lastMA[p.maNext] = maEntry{period: period, value: v}
	p.maNext = (p.maNext + 1) % maCacheSize
}

func (p *SymbolPool) atr(period int, est VolatilityEstimator) float64 {
	if period < 1 {
		return 0
	}
	n := period + 1
	highs, ok := p.series.Window(ringbuf.FieldHigh, n, p.highs)
	if !ok {
		return 0
	}
	lows, _ := p.series.Window(ringbuf.FieldLow, n, p.lows)
	closes, _ := p.series.Window(ringbuf.FieldClose, n, p.closes)

	v := finite(est.Estimate(highs, lows, closes))
	p.lastATR = v
	return v
}

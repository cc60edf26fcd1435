// Package risk converts equity, volatility and a risk budget into position
// sizes and stop prices.
//
// The strategy state machine only sees the Sizer interface; ATRSizer is the
// default implementation.
package risk

import "math"

// Sizer is the risk collaborator consumed by the position state machine.
//
// Non-finite or non-positive results from PositionSize or StopPrice mean
// "no trade". TrailingStop returns ok=false for "no update this bar".
type Sizer interface {
	// PositionSize returns the quantity to buy.
	PositionSize(equity, atr, riskFrac float64) float64

	// StopPrice returns the initial protective stop for a long entry.
	StopPrice(entry, atr float64) float64

	// TrailingStop proposes a new stop for an open long. hasStop is false
	// when no stop has been set yet; atr <= 0 means volatility is unavailable.
	TrailingStop(entry, price, stop float64, hasStop bool, breakevenR, trailR, atr float64) (float64, bool)
}

// ATRSizer sizes positions so that a stop StopMultiple·ATR below entry
// loses riskFrac of equity.
type ATRSizer struct {
	StopMultiple float64 `json:"stop_multiple" yaml:"stop_multiple"` // R distance in ATRs
	MaxQty       float64 `json:"max_qty" yaml:"max_qty"`             // 0 = unlimited
}

// DefaultATRSizer returns a 2·ATR stop sizer without a quantity cap.
func DefaultATRSizer() ATRSizer {
	return ATRSizer{StopMultiple: 2}
}

func (s ATRSizer) multiple() float64 {
	if s.StopMultiple <= 0 || !isFinite(s.StopMultiple) {
		return 2
	}
	return s.StopMultiple
}

// PositionSize returns equity·riskFrac / (StopMultiple·atr), capped by MaxQty.
// Any unusable input yields 0.
func (s ATRSizer) PositionSize(equity, atr, riskFrac float64) float64 {
	if !positive(equity) || !positive(atr) || !positive(riskFrac) {
		return 0
	}
	qty := equity * riskFrac / (s.multiple() * atr)
	if s.MaxQty > 0 && qty > s.MaxQty {
		qty = s.MaxQty
	}
	return qty
}

// StopPrice returns entry − StopMultiple·atr.
func (s ATRSizer) StopPrice(entry, atr float64) float64 {
	if !positive(entry) || !positive(atr) {
		return math.NaN()
	}
	return entry - s.multiple()*atr
}

// TrailingStop moves the stop to breakeven once price is breakevenR·R in
// profit, and trails it R below price once trailR·R in profit, where
// R = StopMultiple·atr.
func (s ATRSizer) TrailingStop(entry, price, stop float64, hasStop bool, breakevenR, trailR, atr float64) (float64, bool) {
	if !positive(atr) || !isFinite(price) || !isFinite(entry) {
		return 0, false
	}
	r := s.multiple() * atr
	profit := price - entry

	var next float64
	switch {
	case profit >= trailR*r:
		next = price - r
	case profit >= breakevenR*r:
		next = entry
	default:
		return 0, false
	}
	if hasStop && next <= stop {
		return 0, false
	}
	return next, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return isFinite(v) && v > 0
}

// Usable reports whether a collaborator result can be acted on.
func Usable(v float64) bool { return positive(v) }

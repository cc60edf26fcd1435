package model

import (
	"math"
	"time"
)

// Bar is one OHLCV observation for a single symbol.
// Bars are value types and are never mutated after they enter a series.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Finite reports whether every price field is a finite number.
func (b *Bar) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

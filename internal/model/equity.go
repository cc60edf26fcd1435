package model

import "time"

// EquityPoint is one sample of the equity curve: realized equity plus the
// mark-to-market value of any open position at the bar close.
type EquityPoint struct {
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

// ExitReason tells why a position was closed. It is empty for a trade
// still open at the end of the data.
type ExitReason string

const (
	ExitStop  ExitReason = "STOP"
	ExitTrend ExitReason = "TREND"
)

// Trade is a round trip (or a still-open leg) produced by a backtest.
type Trade struct {
	Symbol      string     `json:"symbol"`
	EntryIndex  int        `json:"entry_index"`
	EntryTS     time.Time  `json:"entry_ts"`
	EntryPrice  float64    `json:"entry_price"`
	Qty         float64    `json:"qty"`
	InitialStop float64    `json:"initial_stop"`
	ExitIndex   int        `json:"exit_index"` // -1 while open
	ExitTS      time.Time  `json:"exit_ts"`
	ExitPrice   float64    `json:"exit_price"`
	Reason      ExitReason `json:"reason"`
	PnL         float64    `json:"pnl"`
}

// Open reports whether the trade has no exit yet.
func (t *Trade) Open() bool {
	return t.ExitIndex < 0
}

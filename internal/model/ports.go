package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the backtest command from concrete stores (SQLite, CSV,
// Redis). Each implementation satisfies one or more of them.

// BarSource loads historical bars for one symbol, oldest first.
type BarSource interface {
	// ReadBars returns bars with a timestamp strictly after afterTS
	// (Unix seconds, 0 = all).
	ReadBars(symbol string, afterTS int64) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// RunRecord is everything a finished backtest run persists.
type RunRecord struct {
	RunID  string
	Symbol string
	Params []byte // JSON-encoded backtest config
	Equity []EquityPoint
	Trades []Trade
}

// ResultSink persists or publishes a finished run.
type ResultSink interface {
	SaveRun(ctx context.Context, rec RunRecord) error
}

package backtest

import (
	"trend-backtest/internal/indicator"
	"trend-backtest/internal/model"
	"trend-backtest/internal/portfolio"
	"trend-backtest/internal/strategy"
)

// Result is the outcome of one symbol's run.
type Result struct {
	Symbol string              `json:"symbol"`
	Equity []model.EquityPoint `json:"equity"` // one point per input bar
	Trades []model.Trade       `json:"trades"`
	Events []strategy.Event    `json:"events"`

	Summary    portfolio.Summary   `json:"summary"`
	Final      strategy.Checkpoint `json:"final"`
	Indicators indicator.Stats     `json:"indicators"`
}

// FinalEquity is the last point of the curve, or 0 for an empty run.
func (r *Result) FinalEquity() float64 {
	if len(r.Equity) == 0 {
		return 0
	}
	return r.Equity[len(r.Equity)-1].Equity
}

// Record packages the result for a model.ResultSink.
func (r *Result) Record(runID string, cfg Config) model.RunRecord {
	return model.RunRecord{
		RunID:  runID,
		Symbol: r.Symbol,
		Params: cfg.JSON(),
		Equity: r.Equity,
		Trades: r.Trades,
	}
}

// Package portfolio turns position state-machine events into a per-symbol
// trade ledger with realized P&L.
package portfolio

import (
	"trend-backtest/internal/model"
	"trend-backtest/internal/strategy"
)

// Ledger records the trades of one symbol in the order they happen.
// Not safe for concurrent use; each backtest run owns its ledger.
type Ledger struct {
	symbol   string
	trades   []model.Trade
	open     int // index into trades of the open trade, -1 if flat
	realized float64
}

// NewLedger creates an empty ledger for symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol: symbol,
		trades: make([]model.Trade, 0, 16),
		open:   -1,
	}
}

// Record applies one state-machine event. Events other than entries and
// exits are ignored.
func (l *Ledger) Record(ev strategy.Event) {
	switch ev.Type {
	case strategy.EventEntry:
		l.trades = append(l.trades, model.Trade{
			Symbol:      l.symbol,
			EntryIndex:  ev.Index,
			EntryTS:     ev.TS,
			EntryPrice:  ev.Price,
			Qty:         ev.Qty,
			InitialStop: ev.Stop,
			ExitIndex:   -1,
		})
		l.open = len(l.trades) - 1

	case strategy.EventExit:
		if l.open < 0 {
			return
		}
		t := &l.trades[l.open]
		t.ExitIndex = ev.Index
		t.ExitTS = ev.TS
		t.ExitPrice = ev.Price
		t.Reason = ev.Reason
		t.PnL = ev.PnL
		l.realized += ev.PnL
		l.open = -1
	}
}

// MarkOpen values the open trade (if any) at price without closing it.
func (l *Ledger) MarkOpen(price float64) {
	if l.open < 0 {
		return
	}
	t := &l.trades[l.open]
	t.PnL = (price - t.EntryPrice) * t.Qty
}

// RealizedPnL returns the sum of closed-trade P&L.
func (l *Ledger) RealizedPnL() float64 { return l.realized }

// Trades returns a snapshot of all trades, the open one last.
func (l *Ledger) Trades() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Summary counts trades by outcome. It carries no return statistics.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	StopExits   int     `json:"stop_exits"`
	TrendExits  int     `json:"trend_exits"`
	Open        int     `json:"open"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// GetSummary returns the ledger summary.
func (l *Ledger) GetSummary() Summary {
	s := Summary{TotalTrades: len(l.trades), RealizedPnL: l.realized}
	for i := range l.trades {
		t := &l.trades[i]
		if t.Open() {
			s.Open++
			continue
		}
		if t.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		switch t.Reason {
		case model.ExitStop:
			s.StopExits++
		case model.ExitTrend:
			s.TrendExits++
		}
	}
	return s
}

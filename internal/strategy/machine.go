// Package strategy implements the per-symbol position state machine.
//
// A Machine is either Flat or Long and is stepped once per bar with the
// bar's indicators. Each step runs, in this order: trailing-stop update,
// stop-loss exit, trend exit, entry, equity snapshot. The order is part of
// the contract: when several conditions hold on the same bar the earlier
// one wins, and a position closes at most once per bar.
package strategy

import (
	"fmt"
	"math"
	"time"

	"trend-backtest/internal/indicator"
	"trend-backtest/internal/model"
	"trend-backtest/internal/risk"
)

// State of a Machine.
type State uint8

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Position is the single open long of a Machine.
type Position struct {
	EntryIndex  int       `json:"entry_index"`
	EntryTS     time.Time `json:"entry_ts"`
	EntryPrice  float64   `json:"entry_price"`
	Qty         float64   `json:"qty"`
	InitialStop float64   `json:"initial_stop"`
	CurrentStop float64   `json:"current_stop"`
	HasStop     bool      `json:"has_stop"`
}

// Machine runs one strategy variant for one symbol.
// Not safe for concurrent use.
type Machine struct {
	params Params
	trend  TrendParams
	sizer  risk.Sizer

	state    State
	pos      Position
	equity   float64 // realized
	lastMark float64 // last finite close, used when a bar's close is unusable
}

// NewMachine validates params and returns a Flat machine holding equity.
func NewMachine(params Params, sizer risk.Sizer, equity float64) (*Machine, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil params", ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sizer == nil {
		return nil, fmt.Errorf("%w: nil risk sizer", ErrInvalidParams)
	}
	if !(equity > 0) || math.IsInf(equity, 0) {
		return nil, fmt.Errorf("%w: initial equity must be positive and finite, got %v", ErrInvalidParams, equity)
	}
	return &Machine{
		params: params,
		trend:  params.trend(),
		sizer:  sizer,
		equity: equity,
	}, nil
}

// Params returns the machine's strategy parameters.
func (m *Machine) Params() Params { return m.params }

// State returns Flat or Long.
func (m *Machine) State() State { return m.state }

// Position returns the open position, if any.
func (m *Machine) Position() (Position, bool) {
	return m.pos, m.state == Long
}

// Equity returns realized equity (excluding any open position).
func (m *Machine) Equity() float64 { return m.equity }

// MarkToMarket returns realized equity plus the open position valued at price.
func (m *Machine) MarkToMarket(price float64) float64 {
	if m.state != Long {
		return m.equity
	}
	return m.equity + (price-m.pos.EntryPrice)*m.pos.Qty
}

// Step advances the machine by one bar. i is the zero-based bar index in
// the run and drives the warm-up check. Step never fails: unusable inputs
// and collaborator results only suppress the affected action.
func (m *Machine) Step(i int, bar model.Bar, ind indicator.Snapshot) StepResult {
	var res StepResult

	price := bar.Close
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		res.Equity = m.MarkToMarket(m.lastMark)
		res.State = m.state
		return res
	}
	m.lastMark = price

	if m.state == Long {
		if m.trend.UseTrailingStop {
			m.updateTrailingStop(i, bar, ind, &res)
		}
		if m.pos.HasStop && price < m.pos.CurrentStop {
			m.exit(i, bar, model.ExitStop, &res)
		} else if m.trendBroken(price, ind) {
			m.exit(i, bar, model.ExitTrend, &res)
		}
	}

	if m.state == Flat && i >= Warmup(m.params) && m.entrySignal(price, ind) {
		m.enter(i, bar, ind.ATR, &res)
	}

	res.Equity = m.MarkToMarket(price)
	res.State = m.state
	return res
}

func (m *Machine) updateTrailingStop(i int, bar model.Bar, ind indicator.Snapshot, res *StepResult) {
	next, ok := m.sizer.TrailingStop(m.pos.EntryPrice, bar.Close, m.pos.CurrentStop, m.pos.HasStop,
		m.trend.BreakevenR, m.trend.TrailR, ind.ATR)
	if !ok || math.IsNaN(next) || math.IsInf(next, 0) {
		return
	}
	if m.pos.HasStop && next <= m.pos.CurrentStop {
		return
	}
	m.pos.CurrentStop = next
	m.pos.HasStop = true
	res.add(Event{
		Type:  EventStopRaised,
		Index: i,
		TS:    bar.TS,
		Price: bar.Close,
		Qty:   m.pos.Qty,
		Stop:  next,
	})
}

func (m *Machine) trendBroken(price float64, ind indicator.Snapshot) bool {
	if !ind.LongReady() {
		return false
	}
	if price < ind.LongMA {
		return true
	}
	if m.params.Kind() == KindMACross && ind.ShortReady() && ind.ShortMA < ind.LongMA {
		return true
	}
	return false
}

func (m *Machine) entrySignal(price float64, ind indicator.Snapshot) bool {
	if !ind.LongReady() || !ind.ATRReady() || price <= ind.LongMA {
		return false
	}
	if m.params.Kind() == KindMACross {
		return ind.ShortReady() && ind.ShortMA > ind.LongMA
	}
	return true
}

func (m *Machine) enter(i int, bar model.Bar, atr float64, res *StepResult) {
	price := bar.Close
	qty := m.sizer.PositionSize(m.equity, atr, m.trend.RiskFrac)
	stop := m.sizer.StopPrice(price, atr)

	skip := ""
	switch {
	case !risk.Usable(qty):
		skip = "position size unusable"
	case !risk.Usable(stop):
		skip = "stop price unusable"
	case stop >= price:
		skip = "stop not below entry"
	}
	if skip != "" {
		res.add(Event{Type: EventEntrySkipped, Index: i, TS: bar.TS, Price: price, Qty: qty, Stop: stop, Note: skip})
		return
	}

	m.state = Long
	m.pos = Position{
		EntryIndex:  i,
		EntryTS:     bar.TS,
		EntryPrice:  price,
		Qty:         qty,
		InitialStop: stop,
		CurrentStop: stop,
		HasStop:     true,
	}
	res.add(Event{Type: EventEntry, Index: i, TS: bar.TS, Price: price, Qty: qty, Stop: stop})
}

func (m *Machine) exit(i int, bar model.Bar, reason model.ExitReason, res *StepResult) {
	pnl := (bar.Close - m.pos.EntryPrice) * m.pos.Qty
	m.equity += pnl
	res.add(Event{
		Type:   EventExit,
		Index:  i,
		TS:     bar.TS,
		Price:  bar.Close,
		Qty:    m.pos.Qty,
		Stop:   m.pos.CurrentStop,
		Reason: reason,
		PnL:    pnl,
	})
	m.state = Flat
	m.pos = Position{}
}

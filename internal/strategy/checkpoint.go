package strategy

import (
	"fmt"

	"trend-backtest/internal/risk"
)

// Checkpoint is the complete durable state of a Machine. A live runner can
// persist it between externally triggered steps and resume later.
type Checkpoint struct {
	Kind     Kind     `json:"kind"`
	State    State    `json:"state"`
	Position Position `json:"position"`
	Equity   float64  `json:"equity"`
	LastMark float64  `json:"last_mark"`
}

// Checkpoint captures the machine state.
func (m *Machine) Checkpoint() Checkpoint {
	return Checkpoint{
		Kind:     m.params.Kind(),
		State:    m.state,
		Position: m.pos,
		Equity:   m.equity,
		LastMark: m.lastMark,
	}
}

// RestoreMachine rebuilds a machine from a checkpoint taken with the same
// strategy variant.
func RestoreMachine(params Params, sizer risk.Sizer, cp Checkpoint) (*Machine, error) {
	m, err := NewMachine(params, sizer, cp.Equity)
	if err != nil {
		return nil, err
	}
	if cp.Kind != params.Kind() {
		return nil, fmt.Errorf("%w: checkpoint kind %s does not match %s", ErrInvalidParams, cp.Kind, params.Kind())
	}
	if cp.State == Long && !risk.Usable(cp.Position.Qty) {
		return nil, fmt.Errorf("%w: checkpoint holds a long with qty %v", ErrInvalidParams, cp.Position.Qty)
	}
	m.state = cp.State
	if m.state == Long {
		m.pos = cp.Position
	}
	m.lastMark = cp.LastMark
	return m, nil
}

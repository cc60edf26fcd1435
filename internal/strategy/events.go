package strategy

import (
	"time"

	"trend-backtest/internal/model"
)

// EventType classifies what happened on a step.
type EventType uint8

const (
	EventEntry EventType = iota + 1
	EventExit
	EventStopRaised
	EventEntrySkipped
)

func (t EventType) String() string {
	switch t {
	case EventEntry:
		return "ENTRY"
	case EventExit:
		return "EXIT"
	case EventStopRaised:
		return "STOP_RAISED"
	case EventEntrySkipped:
		return "ENTRY_SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// Event records one state change (or a refused entry) on a bar.
type Event struct {
	Type   EventType        `json:"type"`
	Index  int              `json:"index"`
	TS     time.Time        `json:"ts"`
	Price  float64          `json:"price"`
	Qty    float64          `json:"qty"`
	Stop   float64          `json:"stop"`
	Reason model.ExitReason `json:"reason,omitempty"`
	PnL    float64          `json:"pnl,omitempty"`
	Note   string           `json:"note,omitempty"`
}

// maxEventsPerStep: stop raise + exit + re-entry (or skipped entry).
const maxEventsPerStep = 3

// StepResult is the outcome of one Machine.Step.
type StepResult struct {
	Equity float64
	State  State

	events [maxEventsPerStep]Event
	n      int
}

// Events returns the events of this step in the order they happened.
func (r *StepResult) Events() []Event {
	return r.events[:r.n]
}

func (r *StepResult) add(ev Event) {
	if r.n < maxEventsPerStep {
		r.events[r.n] = ev
		r.n++
	}
}

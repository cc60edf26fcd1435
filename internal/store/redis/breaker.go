package redis

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected until the cooldown elapses
	BreakerHalfOpen                     // one trial call admitted at a time
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("redis publish breaker is open")

// Breaker stops a run from hammering an unreachable Redis. After
// maxFailures consecutive failures it rejects calls for cooldown. The
// first call after the cooldown is the only one admitted until it
// returns; success closes the breaker, failure restarts the cooldown.
type Breaker struct {
	mu       sync.Mutex
	state    BreakerState
	streak   int    // consecutive failures while closed
	inFlight bool   // a half-open trial call is running
	trips    uint64 // bumped on every trip; stale outcomes are ignored
	until    time.Time

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	OnStateChange func(from, to BreakerState)
}

// NewBreaker creates a closed breaker. maxFailures < 1 is treated as 1.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: max(maxFailures, 1),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Do runs fn if the breaker admits it and records the outcome.
func (b *Breaker) Do(fn func() error) error {
	t, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(t, err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ticket identifies an admitted call.
type ticket struct {
	trial bool
	trips uint64
}

func (b *Breaker) admit() (ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return ticket{trips: b.trips}, nil
	case BreakerOpen:
		if b.now().Before(b.until) {
			return ticket{}, ErrBreakerOpen
		}
		b.setState(BreakerHalfOpen)
	}
	if b.inFlight {
		return ticket{}, ErrBreakerOpen
	}
	b.inFlight = true
	return ticket{trial: true, trips: b.trips}, nil
}

func (b *Breaker) settle(t ticket, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.trial {
		b.inFlight = false
		if err != nil {
			b.trip()
			return
		}
		b.streak = 0
		b.setState(BreakerClosed)
		return
	}
	// Closed-state calls admitted before the last trip no longer count.
	if t.trips != b.trips || b.state != BreakerClosed {
		return
	}
	if err == nil {
		b.streak = 0
		return
	}
	if b.streak++; b.streak >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.streak = 0
	b.trips++
	b.until = b.now().Add(b.cooldown)
	b.setState(BreakerOpen)
}

func (b *Breaker) setState(to BreakerState) {
	if from := b.state; from != to {
		b.state = to
		if b.OnStateChange != nil {
			b.OnStateChange(from, to)
		}
	}
}

package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-backtest/internal/indicator"
	"trend-backtest/internal/model"
	"trend-backtest/internal/risk"
)

// stubSizer returns fixed answers and records trailing-stop calls.
type stubSizer struct {
	qty     float64
	stop    float64
	trail   float64
	trailOK bool

	trailCalls int
}

func (s *stubSizer) PositionSize(equity, atr, riskFrac float64) float64 { return s.qty }
func (s *stubSizer) StopPrice(entry, atr float64) float64               { return s.stop }

func (s *stubSizer) TrailingStop(entry, price, stop float64, hasStop bool, breakevenR, trailR, atr float64) (float64, bool) {
	s.trailCalls++
	return s.trail, s.trailOK
}

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func barAt(i int, close float64) model.Bar {
	return model.Bar{TS: t0.Add(time.Duration(i) * time.Hour), Open: close, High: close, Low: close, Close: close}
}

func ind(longMA, atr float64) indicator.Snapshot {
	return indicator.Snapshot{LongMA: longMA, ATR: atr}
}

func testParams() TrendParams {
	return TrendParams{
		LongWindow:      3,
		ATRWindow:       2,
		RiskFrac:        0.02,
		UseTrailingStop: true,
		BreakevenR:      1,
		TrailR:          2,
	}
}

func newTestMachine(t *testing.T, p Params, s risk.Sizer) *Machine {
	t.Helper()
	m, err := NewMachine(p, s, 100_000)
	require.NoError(t, err)
	return m
}

// enterLong drives a fresh machine into Long at price 100 on bar 3.
func enterLong(t *testing.T, m *Machine) {
	t.Helper()
	res := m.Step(3, barAt(3, 100), ind(95, 2))
	require.Equal(t, Long, res.State)
}

func TestMachine_EntryAfterWarmup(t *testing.T) {
	s := &stubSizer{qty: 10, stop: 96}
	m := newTestMachine(t, testParams(), s)

	for i := 0; i < 3; i++ {
		res := m.Step(i, barAt(i, 100), ind(95, 2))
		assert.Equal(t, Flat, res.State, "bar %d is inside warm-up", i)
		assert.Equal(t, 100_000.0, res.Equity)
	}

	res := m.Step(3, barAt(3, 100), ind(95, 2))
	require.Equal(t, Long, res.State)
	evs := res.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventEntry, evs[0].Type)

	pos, ok := m.Position()
	require.True(t, ok)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 10.0, pos.Qty)
	assert.Equal(t, 96.0, pos.InitialStop)
	assert.Equal(t, 96.0, pos.CurrentStop)
	assert.Equal(t, 3, pos.EntryIndex)
}

func TestMachine_NoEntryWithoutIndicators(t *testing.T) {
	tests := []struct {
		name string
		snap indicator.Snapshot
		px   float64
	}{
		{"long MA unavailable", ind(0, 2), 100},
		{"atr unavailable", ind(95, 0), 100},
		{"close not above MA", ind(100, 2), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 96})
			res := m.Step(5, barAt(5, tt.px), tt.snap)
			assert.Equal(t, Flat, res.State)
			assert.Empty(t, res.Events())
		})
	}
}

func TestMachine_ZeroSizeStaysFlat(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 0, stop: 96})

	res := m.Step(3, barAt(3, 100), ind(95, 2))
	assert.Equal(t, Flat, res.State)
	assert.Equal(t, 100_000.0, res.Equity)
	evs := res.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, EventEntrySkipped, evs[0].Type)
}

func TestMachine_UnusableCollaboratorResults(t *testing.T) {
	tests := []struct {
		name string
		qty  float64
		stop float64
	}{
		{"nan qty", math.NaN(), 96},
		{"inf qty", math.Inf(1), 96},
		{"negative qty", -3, 96},
		{"nan stop", 10, math.NaN()},
		{"zero stop", 10, 0},
		{"stop above entry", 10, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, testParams(), &stubSizer{qty: tt.qty, stop: tt.stop})
			res := m.Step(3, barAt(3, 100), ind(95, 2))
			assert.Equal(t, Flat, res.State)
			assert.Equal(t, 100_000.0, res.Equity)
		})
	}
}

func TestMachine_TrailingNoUpdateKeepsStop(t *testing.T) {
	s := &stubSizer{qty: 10, stop: 96, trailOK: false}
	m := newTestMachine(t, testParams(), s)
	enterLong(t, m)

	res := m.Step(4, barAt(4, 103), ind(95, 2))
	assert.Equal(t, Long, res.State)
	assert.Equal(t, 1, s.trailCalls)
	pos, _ := m.Position()
	assert.Equal(t, 96.0, pos.CurrentStop)
	assert.Empty(t, res.Events())
}

func TestMachine_TrailingStopNeverDecreases(t *testing.T) {
	s := &stubSizer{qty: 10, stop: 96, trailOK: true}
	m := newTestMachine(t, testParams(), s)
	enterLong(t, m)

	proposals := []float64{98, 97, 99, 50, 99, 101}
	prev := 96.0
	for k, p := range proposals {
		s.trail = p
		res := m.Step(4+k, barAt(4+k, 110), ind(95, 2))
		require.Equal(t, Long, res.State)
		pos, _ := m.Position()
		assert.GreaterOrEqual(t, pos.CurrentStop, prev, "step %d", k)
		prev = pos.CurrentStop
	}
	assert.Equal(t, 101.0, prev)
}

func TestMachine_TrailingDisabled(t *testing.T) {
	p := testParams()
	p.UseTrailingStop = false
	s := &stubSizer{qty: 10, stop: 96, trail: 105, trailOK: true}
	m := newTestMachine(t, p, s)
	enterLong(t, m)

	m.Step(4, barAt(4, 110), ind(95, 2))
	assert.Zero(t, s.trailCalls)
	pos, _ := m.Position()
	assert.Equal(t, 96.0, pos.CurrentStop)
}

func TestMachine_StopExitRealizes(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 96})
	enterLong(t, m)

	res := m.Step(4, barAt(4, 95), ind(94, 2))
	assert.Equal(t, Flat, res.State)
	assert.InDelta(t, 100_000-50, res.Equity, 1e-9)
	assert.InDelta(t, 100_000-50, m.Equity(), 1e-9)

	// The exit bar still closes above the trend filter, so a re-entry is
	// attempted; the stub's stop (96) is above the close and it is refused.
	evs := res.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, EventExit, evs[0].Type)
	assert.Equal(t, EventEntrySkipped, evs[1].Type)
	assert.Equal(t, model.ExitStop, evs[0].Reason)
	assert.InDelta(t, -50, evs[0].PnL, 1e-9)
	_, open := m.Position()
	assert.False(t, open)
}

func TestMachine_TrendExit(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 90})
	enterLong(t, m)

	res := m.Step(4, barAt(4, 97), ind(98, 2))
	assert.Equal(t, Flat, res.State)
	evs := res.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.ExitTrend, evs[0].Reason)
	assert.InDelta(t, 100_000-30, res.Equity, 1e-9)
}

func TestMachine_StopAndTrendCloseOnce(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 96})
	enterLong(t, m)

	// Both the stop (96) and the trend filter (99) are breached.
	res := m.Step(4, barAt(4, 94), ind(99, 2))
	evs := res.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.ExitStop, evs[0].Reason)
	assert.InDelta(t, 100_000-60, res.Equity, 1e-9)
}

func TestMachine_ReentryOnExitBar(t *testing.T) {
	s := &stubSizer{qty: 10, stop: 96}
	m := newTestMachine(t, testParams(), s)
	enterLong(t, m)

	// Stop hit at 95 while still above the trend filter: exit then re-enter.
	s.stop = 91
	res := m.Step(4, barAt(4, 95), ind(90, 2))
	evs := res.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, EventExit, evs[0].Type)
	assert.Equal(t, EventEntry, evs[1].Type)
	assert.Equal(t, Long, res.State)

	pos, ok := m.Position()
	require.True(t, ok)
	assert.Equal(t, 95.0, pos.EntryPrice)
	assert.Equal(t, 91.0, pos.CurrentStop)
}

func TestMachine_MarkToMarketEquity(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 90})
	enterLong(t, m)

	res := m.Step(4, barAt(4, 104.5), ind(95, 2))
	assert.InDelta(t, 100_045, res.Equity, 1e-9)
	assert.Equal(t, 100_000.0, m.Equity(), "realized equity is unchanged while open")
}

func TestMachine_NonFiniteCloseIsAbsorbed(t *testing.T) {
	m := newTestMachine(t, testParams(), &stubSizer{qty: 10, stop: 90})
	enterLong(t, m)

	for _, px := range []float64{math.NaN(), math.Inf(-1), 0, -4} {
		res := m.Step(4, barAt(4, px), ind(95, 2))
		assert.Equal(t, Long, res.State)
		assert.Equal(t, 100_000.0, res.Equity, "marked at last good close %v", px)
	}
}

func TestMachine_MACrossNeedsShortAboveLong(t *testing.T) {
	p := MACrossParams{TrendParams: testParams(), ShortWindow: 2}
	m := newTestMachine(t, p, &stubSizer{qty: 10, stop: 96})

	res := m.Step(3, barAt(3, 100), indicator.Snapshot{ShortMA: 94, LongMA: 95, ATR: 2})
	assert.Equal(t, Flat, res.State)

	res = m.Step(4, barAt(4, 100), indicator.Snapshot{ShortMA: 97, LongMA: 95, ATR: 2})
	require.Equal(t, Long, res.State)

	// Short average falls under long while price is still above both stop and MA.
	res = m.Step(5, barAt(5, 99), indicator.Snapshot{ShortMA: 94.5, LongMA: 95, ATR: 2})
	assert.Equal(t, Flat, res.State)
	evs := res.Events()
	require.NotEmpty(t, evs)
	assert.Equal(t, model.ExitTrend, evs[0].Reason)
}

func TestNewMachine_Validation(t *testing.T) {
	good := testParams()

	_, err := NewMachine(nil, &stubSizer{}, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewMachine(good, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewMachine(good, &stubSizer{}, 0)
	assert.ErrorIs(t, err, ErrInvalidParams)

	bad := good
	bad.RiskFrac = 1.5
	_, err = NewMachine(bad, &stubSizer{}, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewMachine(MACrossParams{TrendParams: good, ShortWindow: 3}, &stubSizer{}, 1)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCheckpoint_RoundTripResumes(t *testing.T) {
	s := &stubSizer{qty: 10, stop: 96}
	m := newTestMachine(t, testParams(), s)
	enterLong(t, m)
	m.Step(4, barAt(4, 102), ind(95, 2))

	cp := m.Checkpoint()
	resumed, err := RestoreMachine(testParams(), s, cp)
	require.NoError(t, err)

	a := m.Step(5, barAt(5, 95), ind(90, 2))
	b := resumed.Step(5, barAt(5, 95), ind(90, 2))
	assert.Equal(t, a.Equity, b.Equity)
	assert.Equal(t, a.State, b.State)

	_, err = RestoreMachine(MACrossParams{TrendParams: testParams(), ShortWindow: 2}, s, cp)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("ma-cross")
	require.NoError(t, err)
	assert.Equal(t, KindMACross, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindTrendFollowing, k)

	_, err = ParseKind("mean_reversion")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

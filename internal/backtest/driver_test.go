package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-backtest/internal/indicator"
	"trend-backtest/internal/logger"
	"trend-backtest/internal/marketdata/synth"
	"trend-backtest/internal/metrics"
	"trend-backtest/internal/risk"
	"trend-backtest/internal/strategy"
)

var start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newDriver(t *testing.T, cfg Config, opts ...Option) *Driver {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	d, err := NewDriver(cfg, risk.DefaultATRSizer(), opts...)
	require.NoError(t, err)
	return d
}

func withLong(long int) Config {
	cfg := DefaultConfig()
	cfg.LongWindow = long
	return cfg
}

func entries(res *Result) []strategy.Event {
	var out []strategy.Event
	for _, ev := range res.Events {
		if ev.Type == strategy.EventEntry {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_ConstantPriceIsFlat(t *testing.T) {
	d := newDriver(t, DefaultConfig())
	bars := synth.Daily(synth.Constant(250, 100), start)

	res, err := d.Run(context.Background(), "FLAT", bars)
	require.NoError(t, err)

	require.Len(t, res.Equity, 250)
	for i, p := range res.Equity {
		assert.Equal(t, 100000.0, p.Equity, "bar %d", i)
		assert.True(t, p.TS.Equal(bars[i].TS))
	}
	assert.Empty(t, res.Trades)
}

func TestRun_LinearUptrendEntersOnceAndNeverLoses(t *testing.T) {
	d := newDriver(t, withLong(50))
	bars := synth.Daily(synth.Linear(300, 100, 200), start)

	res, err := d.Run(context.Background(), "UP", bars)
	require.NoError(t, err)
	require.Len(t, res.Equity, 300)

	assert.Equal(t, 100000.0, res.Equity[0].Equity)

	ent := entries(res)
	require.Len(t, ent, 1)
	assert.Equal(t, 50, ent[0].Index, "first bar after warm-up with close above MA(50)")

	for i := ent[0].Index + 1; i < len(res.Equity); i++ {
		assert.GreaterOrEqual(t, res.Equity[i].Equity, res.Equity[i-1].Equity, "bar %d", i)
	}
	assert.Greater(t, res.FinalEquity(), 100000.0)

	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Open())
	assert.Equal(t, strategy.Long, res.Final.State)
}

func TestRun_CrashIsExitedBeforeBottom(t *testing.T) {
	d := newDriver(t, withLong(30))
	closes := synth.TrendThenCrash(100, 100, 150, 50, 80)
	bars := synth.Daily(closes, start)

	res, err := d.Run(context.Background(), "CRASH", bars)
	require.NoError(t, err)
	require.Len(t, res.Equity, len(bars))

	require.NotEmpty(t, res.Trades)
	first := res.Trades[0]
	require.False(t, first.Open(), "the uptrend position must be closed")
	assert.Less(t, first.ExitIndex, len(bars)-1)

	for _, tr := range res.Trades {
		assert.False(t, tr.Open(), "no position should survive into the bottom")
		assert.Less(t, tr.ExitIndex, len(bars)-1)
	}
	assert.Equal(t, strategy.Flat, res.Final.State)

	paper := 100000 + (80-first.EntryPrice)*first.Qty
	assert.Greater(t, res.FinalEquity(), paper, "drawdown must be far smaller than holding to 80")
	assert.Greater(t, res.FinalEquity(), 100000.0)
}

func TestRun_LongWindowBeyondDataStaysFlat(t *testing.T) {
	d := newDriver(t, withLong(200))
	bars := synth.Daily(synth.Linear(120, 100, 200), start)

	res, err := d.Run(context.Background(), "SHORT", bars)
	require.NoError(t, err)
	require.Len(t, res.Equity, 120)
	for _, p := range res.Equity {
		assert.Equal(t, 100000.0, p.Equity)
	}
	assert.Empty(t, res.Events)
}

func TestRun_StrictWindowsFailsFast(t *testing.T) {
	cfg := withLong(200)
	cfg.StrictWindows = true
	d := newDriver(t, cfg)

	res, err := d.Run(context.Background(), "SHORT", synth.Daily(synth.Constant(120, 100), start))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrWindowExceedsData), "got %v", err)

	res, err = d.Run(context.Background(), "OK", synth.Daily(synth.Constant(200, 100), start))
	require.NoError(t, err)
	assert.Len(t, res.Equity, 200)
}

func TestRun_UnorderedBarsRejected(t *testing.T) {
	d := newDriver(t, withLong(5))
	bars := synth.Daily(synth.Constant(10, 100), start)
	bars[4].TS = bars[3].TS

	res, err := d.Run(context.Background(), "X", bars)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrUnorderedBars), "got %v", err)
}

func TestRun_EmptyInput(t *testing.T) {
	d := newDriver(t, DefaultConfig())
	res, err := d.Run(context.Background(), "X", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Equity)
	assert.Equal(t, 0.0, res.FinalEquity())
}

func TestRun_CancelledContext(t *testing.T) {
	d := newDriver(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx, "X", synth.Daily(synth.Constant(10, 100), start))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Deterministic(t *testing.T) {
	d := newDriver(t, withLong(30))
	bars := synth.Daily(synth.RandomWalk(400, 100, 0.0005, 0.015, 7), start)

	a, err := d.Run(context.Background(), "RW", bars)
	require.NoError(t, err)
	b, err := d.Run(context.Background(), "RW", bars)
	require.NoError(t, err)

	assert.Equal(t, a.Equity, b.Equity)
	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.Events, b.Events)
}

func TestRun_StopsNeverDecreaseAndPositionsNeverOverlap(t *testing.T) {
	d := newDriver(t, withLong(20))
	bars := synth.Daily(synth.RandomWalk(1000, 100, 0.0008, 0.02, 11), start)

	res, err := d.Run(context.Background(), "RW", bars)
	require.NoError(t, err)

	open := false
	stop := math.Inf(-1)
	for _, ev := range res.Events {
		switch ev.Type {
		case strategy.EventEntry:
			require.False(t, open, "entry at bar %d while already long", ev.Index)
			open, stop = true, ev.Stop
		case strategy.EventStopRaised:
			require.True(t, open)
			assert.GreaterOrEqual(t, ev.Stop, stop, "stop lowered at bar %d", ev.Index)
			stop = ev.Stop
		case strategy.EventExit:
			require.True(t, open, "exit at bar %d while flat", ev.Index)
			open = false
		}
	}

	for i := 1; i < len(res.Trades); i++ {
		prev := res.Trades[i-1]
		require.False(t, prev.Open())
		assert.GreaterOrEqual(t, res.Trades[i].EntryIndex, prev.ExitIndex)
	}
}

func TestRun_IndicatorCacheAccounting(t *testing.T) {
	bars := synth.Daily(synth.RandomWalk(500, 100, 0.0005, 0.01, 3), start)

	cached := newDriver(t, withLong(40))
	exact := newDriver(t, withLong(40), WithEngineOptions(indicator.Options{DisableCache: true}))

	a, err := cached.Run(context.Background(), "X", bars)
	require.NoError(t, err)
	b, err := exact.Run(context.Background(), "X", bars)
	require.NoError(t, err)

	assert.Zero(t, b.Indicators.CacheHit)
	assert.Equal(t, uint64(len(bars)), b.Indicators.Computed)
	assert.Equal(t, len(a.Equity), len(b.Equity))
	assert.Equal(t, uint64(len(bars)), a.Indicators.Computed+a.Indicators.CacheHit)
}

type zeroSizer struct{ risk.ATRSizer }

func (zeroSizer) PositionSize(_, _, _ float64) float64 { return 0 }

func TestRun_ZeroSizeNeverEnters(t *testing.T) {
	d, err := NewDriver(withLong(50), zeroSizer{risk.DefaultATRSizer()}, WithLogger(logger.Discard()))
	require.NoError(t, err)

	res, err := d.Run(context.Background(), "UP", synth.Daily(synth.Linear(300, 100, 200), start))
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	assert.Equal(t, strategy.Flat, res.Final.State)
	for _, p := range res.Equity {
		assert.Equal(t, 100000.0, p.Equity)
	}
	require.NotEmpty(t, res.Events)
	for _, ev := range res.Events {
		assert.Equal(t, strategy.EventEntrySkipped, ev.Type)
	}
}

func TestRun_NonFiniteBarsAreAbsorbed(t *testing.T) {
	d := newDriver(t, withLong(20))
	bars := synth.Daily(synth.Linear(100, 100, 150), start)
	bars[60].Close = math.NaN()
	bars[61].Close = -1

	res, err := d.Run(context.Background(), "X", bars)
	require.NoError(t, err)
	require.Len(t, res.Equity, 100)
	for i, p := range res.Equity {
		assert.False(t, math.IsNaN(p.Equity) || math.IsInf(p.Equity, 0), "bar %d", i)
	}
	assert.Equal(t, res.Equity[59].Equity, res.Equity[60].Equity)
	assert.Equal(t, res.Equity[59].Equity, res.Equity[61].Equity)
}

func TestRun_MACrossVariant(t *testing.T) {
	cfg := withLong(50)
	cfg.Strategy = "ma_cross"
	cfg.ShortWindow = 10
	d := newDriver(t, cfg)

	res, err := d.Run(context.Background(), "UP", synth.Daily(synth.Linear(300, 100, 200), start))
	require.NoError(t, err)
	require.Len(t, entries(res), 1)
	assert.Greater(t, res.FinalEquity(), 100000.0)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	d := newDriver(t, withLong(50), WithMetrics(m))

	_, err := d.Run(context.Background(), "UP", synth.Daily(synth.Linear(300, 100, 200), start))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesTotal.WithLabelValues("UP")))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.BarsTotal.WithLabelValues("UP")))
	assert.Greater(t, testutil.ToFloat64(m.StopRaises.WithLabelValues("UP")), 0.0)

	bad := synth.Daily(synth.Constant(3, 100), start)
	bad[2].TS = bad[0].TS
	_, err = d.Run(context.Background(), "BAD", bad)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("invalid")))
}

func TestResult_Record(t *testing.T) {
	cfg := withLong(50)
	d := newDriver(t, cfg)
	res, err := d.Run(context.Background(), "UP", synth.Daily(synth.Linear(100, 100, 200), start))
	require.NoError(t, err)

	rec := res.Record("run-1", cfg)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "UP", rec.Symbol)
	assert.Equal(t, res.Equity, rec.Equity)
	assert.Contains(t, string(rec.Params), `"long_window":50`)
}

// Package backtest drives the indicator engine and the position state
// machine over historical bars and collects the equity curve.
//
// A run is single-threaded and deterministic: the same config, sizer and
// bars always yield the same curve, trades and events. RunAll fans
// independent symbols out to goroutines, each with its own engine.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"trend-backtest/internal/indicator"
	"trend-backtest/internal/logger"
	"trend-backtest/internal/marketdata/replay"
	"trend-backtest/internal/metrics"
	"trend-backtest/internal/model"
	"trend-backtest/internal/portfolio"
	"trend-backtest/internal/risk"
	"trend-backtest/internal/strategy"
)

// Option customizes a Driver.
type Option func(*Driver)

// WithEngineOptions sets indicator engine options. Capacity is always
// taken from Config.
func WithEngineOptions(o indicator.Options) Option {
	return func(d *Driver) { d.engine = o }
}

// WithVolatility selects the ATR estimator.
func WithVolatility(v indicator.VolatilityEstimator) Option {
	return func(d *Driver) { d.engine.Volatility = v }
}

// WithMetrics records run and event counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithLogger sets the logger for trade events (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithWorkers bounds RunAll's parallelism (default GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(d *Driver) { d.workers = n }
}

// Driver runs backtests for one configuration.
// A Driver holds no per-run state and is safe for concurrent use.
type Driver struct {
	cfg     Config
	params  strategy.Params
	sizer   risk.Sizer
	engine  indicator.Options
	metrics *metrics.Metrics
	log     *slog.Logger
	workers int
}

// NewDriver validates cfg and returns a driver using sizer for position
// sizing and stops.
func NewDriver(cfg Config, sizer risk.Sizer, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sizer == nil {
		return nil, fmt.Errorf("%w: nil risk sizer", ErrInvalidConfig)
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	d := &Driver{
		cfg:     cfg,
		params:  params,
		sizer:   sizer,
		log:     slog.Default(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.engine.Capacity = cfg.EffectiveCapacity()
	if d.workers < 1 {
		d.workers = 1
	}
	return d, nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() Config { return d.cfg }

// Run backtests one symbol. Bars must be strictly increasing in time.
// All validation happens before the first bar is processed: Run either
// returns an error or a result whose curve has exactly len(bars) points.
func (d *Driver) Run(ctx context.Context, symbol string, bars []model.Bar) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.validate(bars); err != nil {
		d.metrics.ObserveRejected()
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}

	machine, err := strategy.NewMachine(d.params, d.sizer, d.cfg.InitialEquity)
	if err != nil {
		d.metrics.ObserveRejected()
		return nil, fmt.Errorf("backtest %s: %w: %w", symbol, ErrInvalidConfig, err)
	}

	eng := indicator.NewEngine(d.engine)
	id := eng.Register(symbol)
	short, long, atr := strategy.Windows(d.params)
	ledger := portfolio.NewLedger(symbol)

	curve := make([]model.EquityPoint, len(bars))
	events := make([]strategy.Event, 0, 64)
	nonFinite := 0
	start := time.Now()

	for i := range bars {
		b := bars[i]
		if !b.Finite() {
			nonFinite++
		}
		eng.Push(id, b)
		ind := eng.Indicators(id, b.Close, short, long, atr)

		res := machine.Step(i, b, ind)
		for _, ev := range res.Events() {
			ledger.Record(ev)
			events = append(events, ev)
			d.metrics.ObserveEvent(symbol, ev)
			d.logEvent(ctx, symbol, ev)
		}
		curve[i] = model.EquityPoint{TS: b.TS, Equity: res.Equity}
	}

	if n := len(bars); n > 0 {
		if c := bars[n-1].Close; c > 0 && !math.IsInf(c, 0) {
			ledger.MarkOpen(c)
		}
	}

	res := &Result{
		Symbol:     symbol,
		Equity:     curve,
		Trades:     ledger.Trades(),
		Events:     events,
		Summary:    ledger.GetSummary(),
		Final:      machine.Checkpoint(),
		Indicators: eng.Stats(),
	}
	d.metrics.ObserveRun(symbol, len(bars), res.FinalEquity(), time.Since(start))
	d.log.Info("backtest complete",
		append(logger.LogWithRun(ctx),
			"symbol", symbol,
			"bars", len(bars),
			"trades", res.Summary.TotalTrades,
			"final_equity", res.FinalEquity(),
			"non_finite_bars", nonFinite,
		)...)
	return res, nil
}

func (d *Driver) validate(bars []model.Bar) error {
	if err := replay.Validate(bars); err != nil {
		return err
	}
	if d.cfg.StrictWindows {
		return d.cfg.checkWindows(len(bars))
	}
	return nil
}

func (d *Driver) logEvent(ctx context.Context, symbol string, ev strategy.Event) {
	attrs := append(logger.LogWithRun(ctx),
		"symbol", symbol,
		"bar", ev.Index,
		"price", ev.Price,
		"qty", ev.Qty,
		"stop", ev.Stop,
	)
	switch ev.Type {
	case strategy.EventEntry:
		d.log.Info("entry", attrs...)
	case strategy.EventExit:
		d.log.Info("exit", append(attrs, "reason", string(ev.Reason), "pnl", ev.PnL)...)
	case strategy.EventStopRaised:
		d.log.Debug("stop raised", attrs...)
	case strategy.EventEntrySkipped:
		d.log.Debug("entry skipped", append(attrs, "why", ev.Note)...)
	}
}

// Package metrics exposes Prometheus instrumentation for backtest runs.
//
// Each Metrics value owns its registry so several runners (and tests) can
// coexist in one process. All recording helpers are safe on a nil *Metrics,
// which is how an uninstrumented driver is wired.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trend-backtest/internal/strategy"
)

// Metrics holds all Prometheus metrics for the backtest driver.
type Metrics struct {
	Registry *prometheus.Registry

	BarsTotal      *prometheus.CounterVec // labels: symbol
	EntriesTotal   *prometheus.CounterVec // labels: symbol
	ExitsTotal     *prometheus.CounterVec // labels: symbol, reason
	SkippedEntries *prometheus.CounterVec // labels: symbol
	StopRaises     *prometheus.CounterVec // labels: symbol
	RunsTotal      *prometheus.CounterVec // labels: status

	RunDuration prometheus.Histogram
	StepDur     prometheus.Histogram
	FinalEquity *prometheus.GaugeVec // labels: symbol
}

// NewMetrics creates and registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_bars_total",
			Help: "Bars consumed by the backtest driver",
		}, []string{"symbol"}),
		EntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_entries_total",
			Help: "Long entries taken",
		}, []string{"symbol"}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_exits_total",
			Help: "Position exits by reason (STOP, TREND)",
		}, []string{"symbol", "reason"}),
		SkippedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_entries_skipped_total",
			Help: "Entries refused because the risk sizer returned an unusable size or stop",
		}, []string{"symbol"}),
		StopRaises: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_stop_raises_total",
			Help: "Trailing-stop increases applied to open positions",
		}, []string{"symbol"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs by outcome (ok, invalid)",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of a single-symbol backtest run",
			Buckets: prometheus.DefBuckets,
		}),
		StepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_bar_duration_seconds",
			Help:    "Average per-bar processing time of a run",
			Buckets: []float64{0.0000001, 0.0000005, 0.000001, 0.000005, 0.00001, 0.00005, 0.0001},
		}),
		FinalEquity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_final_equity",
			Help: "Last equity-curve value of the most recent run",
		}, []string{"symbol"}),
	}

	m.Registry.MustRegister(
		m.BarsTotal,
		m.EntriesTotal,
		m.ExitsTotal,
		m.SkippedEntries,
		m.StopRaises,
		m.RunsTotal,
		m.RunDuration,
		m.StepDur,
		m.FinalEquity,
	)
	return m
}

// ObserveEvent counts one state-machine event.
func (m *Metrics) ObserveEvent(symbol string, ev strategy.Event) {
	if m == nil {
		return
	}
	switch ev.Type {
	case strategy.EventEntry:
		m.EntriesTotal.WithLabelValues(symbol).Inc()
	case strategy.EventExit:
		m.ExitsTotal.WithLabelValues(symbol, string(ev.Reason)).Inc()
	case strategy.EventEntrySkipped:
		m.SkippedEntries.WithLabelValues(symbol).Inc()
	case strategy.EventStopRaised:
		m.StopRaises.WithLabelValues(symbol).Inc()
	}
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(symbol string, bars int, finalEquity float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.BarsTotal.WithLabelValues(symbol).Add(float64(bars))
	m.RunDuration.Observe(elapsed.Seconds())
	if bars > 0 {
		m.StepDur.Observe(elapsed.Seconds() / float64(bars))
	}
	m.FinalEquity.WithLabelValues(symbol).Set(finalEquity)
}

// ObserveRejected records a run that failed validation before starting.
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("invalid").Inc()
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

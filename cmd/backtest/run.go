package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"trend-backtest/config"
	"trend-backtest/internal/backtest"
	"trend-backtest/internal/logger"
	"trend-backtest/internal/marketdata/csvfeed"
	"trend-backtest/internal/marketdata/replay"
	"trend-backtest/internal/marketdata/resample"
	"trend-backtest/internal/metrics"
	"trend-backtest/internal/model"
	"trend-backtest/internal/runid"
	redisstore "trend-backtest/internal/store/redis"
	sqlitestore "trend-backtest/internal/store/sqlite"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backtest one or more symbols",
	Long: `Run loads bars for every symbol, backtests them in parallel and stores
each run's equity curve and trades in the results database. When
REDIS_ADDR (or --redis) is set the results are also published to Redis
streams bt:equity:{symbol} and bt:trades:{symbol}.

Example:
  backtest run --source=csv --csv-dir=data/csv --symbols=AAA,BBB --long=100`,
	RunE: runBacktest,
}

var (
	runSymbols  string
	runSource   string
	runBarsDB   string
	runCSVDir   string
	runTF       string
	runStrategy string
	runShort    int
	runLong     int
	runATR      int
	runRisk     float64
	runEquity   float64
	runTrailing bool
	runStrict   bool
	runOutDB    string
	runRedis    string
	runMetrics  string
	runLogLevel string
)

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runSymbols, "symbols", "s", "", "comma-separated symbols (default: all symbols in the bars DB)")
	f.StringVar(&runSource, "source", "", "bar source: sqlite or csv")
	f.StringVar(&runBarsDB, "db", "", "SQLite database holding the bars table")
	f.StringVar(&runCSVDir, "csv-dir", "", "directory of <symbol>.csv files")
	f.StringVar(&runTF, "timeframe", "", "resample bars to this timeframe before the run, e.g. 24h")

	f.StringVar(&runStrategy, "strategy", "", "strategy kind: trend_following or ma_cross")
	f.IntVar(&runShort, "short", 0, "ma_cross: short moving-average window")
	f.IntVar(&runLong, "long", 0, "long moving-average window")
	f.IntVar(&runATR, "atr", 0, "ATR window")
	f.Float64Var(&runRisk, "risk", 0, "fraction of equity risked per trade (0.02 = 2%)")
	f.Float64Var(&runEquity, "equity", 0, "initial equity")
	f.BoolVar(&runTrailing, "trailing", true, "enable trailing stops")
	f.BoolVar(&runStrict, "strict", false, "fail when a window exceeds the data length")

	f.StringVar(&runOutDB, "out", "", "results SQLite database (\"-\" disables)")
	f.StringVar(&runRedis, "redis", "", "Redis address for publishing results")
	f.StringVar(&runMetrics, "metrics", "", "serve Prometheus metrics on this address")
	f.StringVar(&runLogLevel, "log-level", "", "debug, info, warn or error")
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("symbols") {
		cfg.Symbols = config.ParseList(runSymbols)
	}
	if f.Changed("source") {
		cfg.Source.Kind = runSource
	}
	if f.Changed("db") {
		cfg.Source.SQLitePath = runBarsDB
	}
	if f.Changed("csv-dir") {
		cfg.Source.CSVDir = runCSVDir
	}
	if f.Changed("timeframe") {
		cfg.Source.Timeframe = runTF
	}
	if f.Changed("strategy") {
		cfg.Backtest.Strategy = runStrategy
	}
	if f.Changed("short") {
		cfg.Backtest.ShortWindow = runShort
	}
	if f.Changed("long") {
		cfg.Backtest.LongWindow = runLong
	}
	if f.Changed("atr") {
		cfg.Backtest.ATRWindow = runATR
	}
	if f.Changed("risk") {
		cfg.Backtest.RiskFrac = runRisk
	}
	if f.Changed("equity") {
		cfg.Backtest.InitialEquity = runEquity
	}
	if f.Changed("trailing") {
		cfg.Backtest.UseTrailingStop = runTrailing
	}
	if f.Changed("strict") {
		cfg.Backtest.StrictWindows = runStrict
	}
	if f.Changed("out") {
		cfg.SQLitePath = runOutDB
		if runOutDB == "-" {
			cfg.SQLitePath = ""
		}
	}
	if f.Changed("redis") {
		cfg.RedisAddr = runRedis
	}
	if f.Changed("metrics") {
		cfg.MetricsAddr = runMetrics
	}
	if f.Changed("log-level") {
		cfg.LogLevel = runLogLevel
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))
	ctx := logger.WithRunID(cmd.Context(), runid.New())

	data, err := loadBars(ctx, cfg, log)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.NewMetrics()
		srv := metrics.NewServer(cfg.MetricsAddr, m)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Stop(sctx)
		}()
	}

	driver, err := backtest.NewDriver(cfg.Backtest, cfg.Sizer,
		backtest.WithLogger(log),
		backtest.WithMetrics(m),
		backtest.WithVolatility(cfg.Estimator()),
	)
	if err != nil {
		return err
	}

	results, err := driver.RunAll(ctx, data)
	if err != nil {
		return err
	}

	sinks, closeSinks := openSinks(cfg, log)
	defer closeSinks()

	symbols := make([]string, 0, len(results))
	for s := range results {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		res := results[sym]
		rec := res.Record(runid.New(), cfg.Backtest)
		for _, sink := range sinks {
			if err := sink.SaveRun(ctx, rec); err != nil {
				log.Error("save run failed", append(logger.LogWithRun(ctx), "symbol", sym, "error", err)...)
			}
		}
		printSummary(cmd.OutOrStdout(), rec.RunID, res, cfg.Backtest.InitialEquity)
	}
	return nil
}

func loadBars(ctx context.Context, cfg *config.Config, log *slog.Logger) (map[string][]model.Bar, error) {
	var src model.BarSource
	symbols := cfg.Symbols

	switch cfg.Source.Kind {
	case "csv":
		src = csvfeed.NewSource(cfg.Source.CSVDir)
	default:
		reader, err := sqlitestore.NewReader(cfg.Source.SQLitePath)
		if err != nil {
			return nil, err
		}
		if len(symbols) == 0 {
			if symbols, err = reader.Symbols(); err != nil {
				reader.Close()
				return nil, err
			}
		}
		src = reader
	}
	defer src.Close()

	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to backtest")
	}

	tf, err := cfg.Source.TimeframeDuration()
	if err != nil {
		return nil, err
	}

	data := make(map[string][]model.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := replay.Load(src, sym, cfg.Source.AfterTS)
		if err != nil {
			return nil, err
		}
		if tf > 0 {
			if bars, err = resample.Bars(bars, tf); err != nil {
				return nil, err
			}
		}
		log.Info("bars loaded", append(logger.LogWithRun(ctx), "symbol", sym, "bars", len(bars))...)
		data[sym] = bars
	}
	return data, nil
}

// openSinks opens the configured result stores. Redis is best effort: an
// unreachable server is logged and skipped.
func openSinks(cfg *config.Config, log *slog.Logger) ([]model.ResultSink, func()) {
	var sinks []model.ResultSink
	var closers []func() error

	if cfg.SQLitePath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Error("results database unavailable", "path", cfg.SQLitePath, "error", err)
		} else {
			sinks = append(sinks, w)
			closers = append(closers, w.Close)
		}
	}
	if cfg.RedisAddr != "" {
		p, err := redisstore.NewPublisher(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("redis publishing disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			sinks = append(sinks, p)
			closers = append(closers, p.Close)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func printSummary(w io.Writer, runID string, res *backtest.Result, initial float64) {
	s := res.Summary
	ret := 0.0
	if initial > 0 {
		ret = (res.FinalEquity()/initial - 1) * 100
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  %-40s║\n", res.Symbol+"  "+runID)
	fmt.Fprintln(w, "╠══════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Bars:          %-25d║\n", len(res.Equity))
	fmt.Fprintf(w, "║  Trades:        %-25d║\n", s.TotalTrades)
	fmt.Fprintf(w, "║  Wins/Losses:   %-25s║\n", fmt.Sprintf("%d/%d", s.Wins, s.Losses))
	fmt.Fprintf(w, "║  Stop/Trend:    %-25s║\n", fmt.Sprintf("%d/%d", s.StopExits, s.TrendExits))
	fmt.Fprintf(w, "║  Open at end:   %-25d║\n", s.Open)
	fmt.Fprintf(w, "║  Final equity:  %-25.2f║\n", res.FinalEquity())
	fmt.Fprintf(w, "║  Return:        %-25s║\n", fmt.Sprintf("%.2f%%", ret))
	fmt.Fprintln(w, "╚══════════════════════════════════════════╝")
}

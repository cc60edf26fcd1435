// cmd/backtest runs trend-following backtests over historical bars from
// SQLite or CSV files and persists the equity curves and trades.
//
// Usage:
//
//	go run ./cmd/backtest run --symbols=NIFTY --long=200 --db=data/bars.db
//	go run ./cmd/backtest synth --kind=crash --symbol=DEMO --csv-dir=data/csv
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trend-backtest/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Bar-by-bar backtester for long-only trend-following strategies",
	Long: `backtest replays historical OHLCV bars through a sliding-window
indicator engine and a per-symbol position state machine, producing an
equity curve and a trade list for every symbol.

Settings come from an optional YAML/JSON file (--config), then environment
variables (BT_*, SQLITE_PATH, REDIS_ADDR, METRICS_ADDR, LOG_LEVEL), then
command-line flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
}

// loadConfig resolves file and environment settings.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load(), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// Package replay loads historical bars for a backtest pass and checks they
// form a valid, strictly time-ordered sequence.
package replay

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"trend-backtest/internal/model"
)

// ErrUnorderedBars is returned when bar timestamps are not strictly increasing.
var ErrUnorderedBars = errors.New("bars not strictly increasing in time")

// Validate reports the first index whose timestamp does not follow its
// predecessor. An empty or single-bar slice is valid.
func Validate(bars []model.Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			return fmt.Errorf("%w: bar %d at %s follows %s",
				ErrUnorderedBars, i, bars[i].TS.Format("2006-01-02T15:04:05Z07:00"),
				bars[i-1].TS.Format("2006-01-02T15:04:05Z07:00"))
		}
	}
	return nil
}

// Load reads bars for symbol newer than afterTS (Unix seconds, 0 = all)
// from src, sorts them by time and validates the result. Duplicate
// timestamps are an error rather than being silently merged.
func Load(src model.BarSource, symbol string, afterTS int64) ([]model.Bar, error) {
	bars, err := src.ReadBars(symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("replay load %s: %w", symbol, err)
	}
	sortBars(bars)
	if err := Validate(bars); err != nil {
		return nil, fmt.Errorf("replay load %s: %w", symbol, err)
	}
	slog.Debug("replay loaded bars", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

func sortBars(bars []model.Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
}

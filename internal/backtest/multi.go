package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trend-backtest/internal/model"
)

// RunAll backtests every symbol independently and in parallel. Each symbol
// gets its own engine and machine, so results do not depend on scheduling.
// On failure the error of the alphabetically first failing symbol is
// returned together with the results that did complete.
func (d *Driver) RunAll(ctx context.Context, data map[string][]model.Bar) (map[string]*Result, error) {
	symbols := make([]string, 0, len(data))
	for s := range data {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	results := make([]*Result, len(symbols))
	errs := make([]error, len(symbols))

	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = d.Run(ctx, sym, data[sym])
		}(i, sym)
	}
	wg.Wait()

	out := make(map[string]*Result, len(symbols))
	var firstErr error
	for i, sym := range symbols {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("run all: %w", errs[i])
			}
			continue
		}
		out[sym] = results[i]
	}
	return out, firstErr
}

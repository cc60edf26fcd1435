// Package resample aggregates bars into a coarser timeframe, e.g. hourly
// bars into daily ones. Buckets are aligned to Unix time multiples of the
// timeframe and each output bar carries its bucket start as timestamp.
package resample

import (
	"errors"
	"math"
	"time"

	"trend-backtest/internal/model"
)

// ErrTimeframe is returned for a non-positive or sub-second timeframe.
var ErrTimeframe = errors.New("timeframe must be a positive whole number of seconds")

// Builder folds bars into the forming bucket and emits it when a bar from
// a later bucket arrives. O(1) per bar. Single goroutine only.
type Builder struct {
	tf      int64 // seconds
	bucket  int64 // forming bucket start, Unix seconds
	forming model.Bar
	started bool

	// OnStale is called for a bar older than the forming bucket; the bar
	// is dropped (optional).
	OnStale func(b model.Bar)
}

// NewBuilder creates a builder for timeframe tf.
func NewBuilder(tf time.Duration) (*Builder, error) {
	if tf < time.Second || tf%time.Second != 0 {
		return nil, ErrTimeframe
	}
	return &Builder{tf: int64(tf / time.Second)}, nil
}

// Add folds b into the forming bar. When b opens a new bucket the finished
// bar is returned with ok=true.
func (r *Builder) Add(b model.Bar) (done model.Bar, ok bool) {
	ts := b.TS.Unix()
	bucket := ts - mod(ts, r.tf)

	if r.started && bucket < r.bucket {
		if r.OnStale != nil {
			r.OnStale(b)
		}
		return model.Bar{}, false
	}

	if r.started && bucket > r.bucket {
		done, ok = r.forming, true
		r.started = false
	}

	if !r.started {
		r.bucket = bucket
		r.forming = model.Bar{
			TS:     time.Unix(bucket, 0).UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		r.started = true
		return done, ok
	}

	r.forming.High = math.Max(r.forming.High, b.High)
	r.forming.Low = math.Min(r.forming.Low, b.Low)
	r.forming.Close = b.Close
	r.forming.Volume += b.Volume
	return done, ok
}

// Flush returns the forming bar, if any, and resets the builder.
func (r *Builder) Flush() (model.Bar, bool) {
	if !r.started {
		return model.Bar{}, false
	}
	r.started = false
	return r.forming, true
}

// Bars resamples a time-ordered slice in one pass.
func Bars(bars []model.Bar, tf time.Duration) ([]model.Bar, error) {
	r, err := NewBuilder(tf)
	if err != nil {
		return nil, err
	}
	out := make([]model.Bar, 0, len(bars)/2+1)
	for _, b := range bars {
		if done, ok := r.Add(b); ok {
			out = append(out, done)
		}
	}
	if last, ok := r.Flush(); ok {
		out = append(out, last)
	}
	return out, nil
}

// mod is the non-negative remainder, so pre-1970 timestamps align too.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

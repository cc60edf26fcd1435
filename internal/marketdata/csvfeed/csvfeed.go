// Package csvfeed reads and writes OHLCV bars as CSV files, one file per
// symbol.
package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trend-backtest/internal/model"
)

// ErrBadHeader is returned when a required column is missing.
var ErrBadHeader = errors.New("csv header missing required column")

var header = []string{"ts", "open", "high", "low", "close", "volume"}

var tsAliases = []string{"ts", "timestamp", "time", "date", "datetime"}

// Source serves <Dir>/<symbol>.csv files. It implements model.BarSource.
type Source struct {
	Dir string
}

// NewSource returns a Source rooted at dir.
func NewSource(dir string) *Source {
	return &Source{Dir: dir}
}

// Path returns the file backing symbol.
func (s *Source) Path(symbol string) string {
	return filepath.Join(s.Dir, symbol+".csv")
}

// ReadBars parses the symbol's file and keeps bars with ts > afterTS
// (Unix seconds, 0 = all).
func (s *Source) ReadBars(symbol string, afterTS int64) ([]model.Bar, error) {
	f, err := os.Open(s.Path(symbol))
	if err != nil {
		return nil, fmt.Errorf("csvfeed open: %w", err)
	}
	defer f.Close()

	bars, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("csvfeed %s: %w", symbol, err)
	}
	if afterTS == 0 {
		return bars, nil
	}
	out := bars[:0]
	for _, b := range bars {
		if b.TS.Unix() > afterTS {
			out = append(out, b)
		}
	}
	return out, nil
}

// Close is a no-op.
func (s *Source) Close() error { return nil }

// Parse reads bars from r. The first row is a header; columns are matched
// by name, case-insensitively, so extra columns are ignored. Volume is
// optional. Timestamps may be RFC 3339, "2006-01-02", "2006-01-02 15:04:05"
// or Unix seconds.
func Parse(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columns(head)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

type colIndex struct {
	ts, open, high, low, close, volume int
}

func columns(head []string) (colIndex, error) {
	pos := make(map[string]int, len(head))
	for i, h := range head {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	c := colIndex{ts: -1, volume: -1}
	for _, a := range tsAliases {
		if i, ok := pos[a]; ok {
			c.ts = i
			break
		}
	}
	if c.ts < 0 {
		return c, fmt.Errorf("%w: ts", ErrBadHeader)
	}
	for _, req := range []struct {
		name string
		dst  *int
	}{{"open", &c.open}, {"high", &c.high}, {"low", &c.low}, {"close", &c.close}} {
		i, ok := pos[req.name]
		if !ok {
			return c, fmt.Errorf("%w: %s", ErrBadHeader, req.name)
		}
		*req.dst = i
	}
	if i, ok := pos["volume"]; ok {
		c.volume = i
	}
	return c, nil
}

func parseRow(rec []string, c colIndex) (model.Bar, error) {
	var b model.Bar
	var err error
	if b.TS, err = parseTime(field(rec, c.ts)); err != nil {
		return b, err
	}
	for _, f := range []struct {
		col int
		dst *float64
	}{{c.open, &b.Open}, {c.high, &b.High}, {c.low, &b.Low}, {c.close, &b.Close}} {
		if *f.dst, err = strconv.ParseFloat(field(rec, f.col), 64); err != nil {
			return b, fmt.Errorf("parse price: %w", err)
		}
	}
	if c.volume >= 0 {
		if v := field(rec, c.volume); v != "" {
			if b.Volume, err = strconv.ParseFloat(v, 64); err != nil {
				return b, fmt.Errorf("parse volume: %w", err)
			}
		}
	}
	return b, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Write encodes bars with an RFC 3339 (nanosecond) timestamp column.
func Write(w io.Writer, bars []model.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, b := range bars {
		row[0] = b.TS.UTC().Format(time.RFC3339Nano)
		row[1] = strconv.FormatFloat(b.Open, 'f', -1, 64)
		row[2] = strconv.FormatFloat(b.High, 'f', -1, 64)
		row[3] = strconv.FormatFloat(b.Low, 'f', -1, 64)
		row[4] = strconv.FormatFloat(b.Close, 'f', -1, 64)
		row[5] = strconv.FormatFloat(b.Volume, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes bars to <dir>/<symbol>.csv, creating dir if needed.
func WriteFile(dir, symbol string, bars []model.Bar) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csvfeed mkdir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, symbol+".csv"))
	if err != nil {
		return fmt.Errorf("csvfeed create: %w", err)
	}
	if err := Write(f, bars); err != nil {
		f.Close()
		return fmt.Errorf("csvfeed write: %w", err)
	}
	return f.Close()
}

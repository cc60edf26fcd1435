package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"trend-backtest/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for loading historical bars.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for symbol stamped after the second afterTS (Unix
// seconds), ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadBars(symbol string, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, (afterTS+1)*int64(time.Second))
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsNano int64
		if err := rows.Scan(&tsNano, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(0, tsNano).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the distinct symbols present in the bars table.
func (r *Reader) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReadEquity returns the stored equity curve of a run.
func (r *Reader) ReadEquity(runID string) ([]model.EquityPoint, error) {
	rows, err := r.db.Query(`
		SELECT ts, equity FROM equity WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query equity: %w", err)
	}
	defer rows.Close()

	var curve []model.EquityPoint
	for rows.Next() {
		var p model.EquityPoint
		var tsNano int64
		if err := rows.Scan(&tsNano, &p.Equity); err != nil {
			return nil, fmt.Errorf("sqlite scan equity: %w", err)
		}
		p.TS = time.Unix(0, tsNano).UTC()
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// ReadTrades returns the stored trades of a run in entry order.
func (r *Reader) ReadTrades(runID string) ([]model.Trade, error) {
	rows, err := r.db.Query(`
		SELECT symbol, entry_index, entry_ts, entry_price, qty, initial_stop,
		       exit_index, exit_ts, exit_price, reason, pnl
		FROM trades WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var entryTS, exitTS int64
		var reason string
		if err := rows.Scan(&t.Symbol, &t.EntryIndex, &entryTS, &t.EntryPrice, &t.Qty, &t.InitialStop,
			&t.ExitIndex, &exitTS, &t.ExitPrice, &reason, &t.PnL); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.EntryTS = time.Unix(0, entryTS).UTC()
		if !t.Open() {
			t.ExitTS = time.Unix(0, exitTS).UTC()
		}
		t.Reason = model.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

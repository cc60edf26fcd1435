// Package sqlite persists historical bars and finished backtest runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"trend-backtest/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/backtest.db"
}

// Writer is a single-connection SQLite writer. Every call runs in one
// transaction.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL, -- Unix nanoseconds, as are all *ts columns
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			params     TEXT    NOT NULL,
			bars       INTEGER NOT NULL,
			final      REAL    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS trades (
			run_id       TEXT    NOT NULL,
			seq          INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			entry_index  INTEGER NOT NULL,
			entry_ts     INTEGER NOT NULL,
			entry_price  REAL    NOT NULL,
			qty          REAL    NOT NULL,
			initial_stop REAL    NOT NULL,
			exit_index   INTEGER NOT NULL,
			exit_ts      INTEGER NOT NULL,
			exit_price   REAL    NOT NULL,
			reason       TEXT    NOT NULL,
			pnl          REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT    NOT NULL,
			seq    INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			equity REAL    NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}

// InsertBars upserts bars for symbol in a single transaction.
func (w *Writer) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.TS.UnixNano(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// SaveRun persists the run header, its trades and its equity curve
// atomically. It implements model.ResultSink.
func (w *Writer) SaveRun(ctx context.Context, rec model.RunRecord) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := saveRun(ctx, tx, rec); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit run: %w", err)
	}
	log.Printf("[sqlite] saved run %s: %d equity points, %d trades", rec.RunID, len(rec.Equity), len(rec.Trades))
	return nil
}

func saveRun(ctx context.Context, tx *sql.Tx, rec model.RunRecord) error {
	final := 0.0
	if n := len(rec.Equity); n > 0 {
		final = rec.Equity[n-1].Equity
	}
	params := string(rec.Params)
	if params == "" {
		params = "{}"
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, symbol, params, bars, final) VALUES (?, ?, ?, ?, ?)
	`, rec.RunID, rec.Symbol, params, len(rec.Equity), final); err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}

	tstmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, symbol, entry_index, entry_ts, entry_price, qty, initial_stop,
		                    exit_index, exit_ts, exit_price, reason, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare trades: %w", err)
	}
	defer tstmt.Close()

	for i, t := range rec.Trades {
		var exitTS int64
		if !t.Open() {
			exitTS = t.ExitTS.UnixNano()
		}
		if _, err := tstmt.ExecContext(ctx, rec.RunID, i, t.Symbol, t.EntryIndex, t.EntryTS.UnixNano(), t.EntryPrice,
			t.Qty, t.InitialStop, t.ExitIndex, exitTS, t.ExitPrice, string(t.Reason), t.PnL); err != nil {
			return fmt.Errorf("sqlite insert trade: %w", err)
		}
	}

	estmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity (run_id, seq, ts, equity) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare equity: %w", err)
	}
	defer estmt.Close()

	for i, p := range rec.Equity {
		if _, err := estmt.ExecContext(ctx, rec.RunID, i, p.TS.UnixNano(), p.Equity); err != nil {
			return fmt.Errorf("sqlite insert equity: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

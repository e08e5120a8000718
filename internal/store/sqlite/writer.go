// Package sqlite persists finalized pipeline entities — closed candles,
// signals and terminal trades — to a local SQLite database. A single
// writer goroutine consumes the event bus and commits in batched
// transactions so the pipeline never waits on disk.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradepulse/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // e.g. "data/tradepulse.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB

	// OnCommit is called with the elapsed time of each batch commit
	// (optional).
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and ensures the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			tick_count INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id          TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			tf          INTEGER NOT NULL,
			direction   TEXT    NOT NULL,
			entry       REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			rr          REAL    NOT NULL,
			confidence  INTEGER NOT NULL,
			conditions  TEXT    NOT NULL,
			candle_ts   INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			id          TEXT    PRIMARY KEY,
			signal_id   TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			entry       REAL    NOT NULL,
			stop_loss   REAL    NOT NULL,
			take_profit REAL    NOT NULL,
			status      TEXT    NOT NULL,
			opened_at   INTEGER NOT NULL,
			closed_at   INTEGER NOT NULL,
			close_price REAL    NOT NULL,
			pnl_pct     REAL    NOT NULL,
			rr_real     REAL    NOT NULL,
			duration_s  REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol, candle_ts);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol  ON trades (symbol, closed_at);
	`)
	return err
}

// Run consumes bus events and persists the durable kinds in batched
// transactions: every batchSize events or every flushDelay, whichever
// comes first. Blocks until ctx is cancelled or events is closed.
func (w *Writer) Run(ctx context.Context, events <-chan model.Event) {
	batch := make([]model.Event, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			elapsed := time.Since(start)
			if w.OnCommit != nil {
				w.OnCommit(elapsed)
			}
			log.Printf("[sqlite] committed %d events in %v", len(batch), elapsed)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			switch ev.Kind {
			case model.EventCandleClosed, model.EventSignalCreated, model.EventTradeClosed:
				batch = append(batch, ev)
			default:
				// Snapshots and open notifications are volatile; Redis
				// carries them.
				continue
			}
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBatch(events []model.Event) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	for _, ev := range events {
		var err error
		switch p := ev.Payload.(type) {
		case model.Candle:
			err = insertCandle(tx, p)
		case model.Signal:
			err = insertSignal(tx, p)
		case model.SimulatedTrade:
			err = insertTrade(tx, p)
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertCandle(tx *sql.Tx, c model.Candle) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, tick_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Symbol, c.TF, c.OpenTime.Unix(), c.Open, c.High, c.Low, c.Close, c.TickCount)
	return err
}

func insertSignal(tx *sql.Tx, s model.Signal) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO signals (id, symbol, tf, direction, entry, stop_loss, take_profit, rr, confidence, conditions, candle_ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Symbol, s.TF, string(s.Direction), s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.RiskReward, s.Confidence, joinConditions(s.Conditions), s.CandleTS.Unix(), s.CreatedAt.Unix())
	return err
}

func insertTrade(tx *sql.Tx, t model.SimulatedTrade) error {
	_, err := tx.Exec(`
		INSERT OR REPLACE INTO trades (id, signal_id, symbol, direction, entry, stop_loss, take_profit, status, opened_at, closed_at, close_price, pnl_pct, rr_real, duration_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.SignalID, t.Symbol, string(t.Direction), t.EntryPrice, t.StopLoss, t.TakeProfit,
		string(t.Status), t.OpenedAt.Unix(), t.ClosedAt.Unix(), t.ClosePrice, t.PnLPercent, t.RRReal, t.DurationSeconds)
	return err
}

func joinConditions(conds []string) string {
	return strings.Join(conds, ",")
}

// Close closes the database.
func (w *Writer) Close() error { return w.db.Close() }

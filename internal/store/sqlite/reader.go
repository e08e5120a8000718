package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"tradepulse/internal/model"
)

// Reader serves recent-history queries from the same database the
// writer maintains. Used by diagnostics; the pipeline itself never
// reads back.
type Reader struct {
	db *sql.DB
}

// NewReader wraps an open writer's database handle.
func NewReader(w *Writer) *Reader { return &Reader{db: w.DB()} }

// RecentSignals returns up to limit signals for a symbol, newest first.
func (r *Reader) RecentSignals(symbol string, limit int) ([]model.Signal, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, tf, direction, entry, stop_loss, take_profit, rr, confidence, conditions, candle_ts, created_at
		FROM signals WHERE symbol = ? ORDER BY candle_ts DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var s model.Signal
		var dir, conds string
		var candleTS, createdAt int64
		if err := rows.Scan(&s.ID, &s.Symbol, &s.TF, &dir, &s.EntryPrice, &s.StopLoss,
			&s.TakeProfit, &s.RiskReward, &s.Confidence, &conds, &candleTS, &createdAt); err != nil {
			return nil, err
		}
		s.Direction = model.Direction(dir)
		if conds != "" {
			s.Conditions = strings.Split(conds, ",")
		}
		s.CandleTS = time.Unix(candleTS, 0).UTC()
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentTrades returns up to limit closed trades for a symbol, newest
// first.
func (r *Reader) RecentTrades(symbol string, limit int) ([]model.SimulatedTrade, error) {
	rows, err := r.db.Query(`
		SELECT id, signal_id, symbol, direction, entry, stop_loss, take_profit, status, opened_at, closed_at, close_price, pnl_pct, rr_real, duration_s
		FROM trades WHERE symbol = ? ORDER BY closed_at DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SimulatedTrade
	for rows.Next() {
		var t model.SimulatedTrade
		var dir, status string
		var openedAt, closedAt int64
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Symbol, &dir, &t.EntryPrice, &t.StopLoss,
			&t.TakeProfit, &status, &openedAt, &closedAt, &t.ClosePrice, &t.PnLPercent,
			&t.RRReal, &t.DurationSeconds); err != nil {
			return nil, err
		}
		t.Direction = model.Direction(dir)
		t.Status = model.TradeStatus(status)
		t.OpenedAt = time.Unix(openedAt, 0).UTC()
		t.ClosedAt = time.Unix(closedAt, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastCandleTS returns the newest stored candle timestamp for a symbol
// and timeframe, or zero time if none exist.
func (r *Reader) LastCandleTS(symbol string, tf int) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, tf,
	).Scan(&ts)
	if err != nil || !ts.Valid {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

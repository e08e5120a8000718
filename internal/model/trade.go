package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TradeStatus is the state of a simulated trade.
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING" // signal accepted, awaiting fill
	TradeOpen    TradeStatus = "OPEN"    // filled, monitoring SL/TP
	TradeProfit  TradeStatus = "PROFIT"  // closed at take-profit
	TradeLoss    TradeStatus = "LOSS"    // closed at stop-loss
	TradeExpired TradeStatus = "EXPIRED" // closed by max duration or teardown
)

// Terminal reports whether the status is a final one.
func (s TradeStatus) Terminal() bool {
	return s == TradeProfit || s == TradeLoss || s == TradeExpired
}

// SimulatedTrade is a paper trade driven through its lifecycle by the
// simulator: PENDING → OPEN → {PROFIT, LOSS, EXPIRED}. Only the simulator
// mutates it; once terminal it is immutable.
type SimulatedTrade struct {
	ID        string    `json:"id"`
	SignalID  string    `json:"signal_id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`

	// SignalEntry is the entry suggested by the signal (candle close).
	// EntryPrice is the actual fill: the first tick after signal creation.
	SignalEntry float64 `json:"signal_entry"`
	EntryPrice  float64 `json:"entry_price"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit  float64 `json:"take_profit"`

	Status     TradeStatus `json:"status"`
	OpenedAt   time.Time   `json:"opened_at"`
	ClosedAt   time.Time   `json:"closed_at"`
	ClosePrice float64     `json:"close_price"`

	PnLPercent      float64 `json:"pnl_percent"`
	RRReal          float64 `json:"rr_real"`
	DurationSeconds float64 `json:"duration_seconds"`

	MaxDuration time.Duration `json:"max_duration_ns"`
}

// Activate transitions PENDING → OPEN, recording the fill price and time.
func (t *SimulatedTrade) Activate(price float64, ts time.Time) error {
	if t.Status != TradePending {
		return fmt.Errorf("activate from %s", t.Status)
	}
	t.EntryPrice = price
	t.OpenedAt = ts
	t.Status = TradeOpen
	return nil
}

// Close transitions OPEN → terminal, computing PnL, realized RR, and
// duration from the closing tick.
func (t *SimulatedTrade) Close(price float64, status TradeStatus, ts time.Time) error {
	if t.Status != TradeOpen {
		return fmt.Errorf("close from %s", t.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("close to non-terminal %s", status)
	}
	t.ClosePrice = price
	t.Status = status
	t.ClosedAt = ts
	t.DurationSeconds = ts.Sub(t.OpenedAt).Seconds()

	if t.EntryPrice != 0 {
		if t.Direction == DirectionBuy {
			t.PnLPercent = (price - t.EntryPrice) / t.EntryPrice * 100.0
		} else {
			t.PnLPercent = (t.EntryPrice - price) / t.EntryPrice * 100.0
		}
	}

	// rrReal = achieved move / risked move, signed by outcome.
	var achieved, risked float64
	if t.Direction == DirectionBuy {
		achieved = price - t.EntryPrice
		risked = t.EntryPrice - t.StopLoss
	} else {
		achieved = t.EntryPrice - price
		risked = t.StopLoss - t.EntryPrice
	}
	if risked > 0 {
		t.RRReal = achieved / risked
	}
	return nil
}

// Expired reports whether an open trade has exceeded its max duration at ts.
func (t *SimulatedTrade) Expired(ts time.Time) bool {
	if t.Status != TradeOpen {
		return false
	}
	return ts.Sub(t.OpenedAt) >= t.MaxDuration
}

// JSON returns the JSON-encoded trade.
func (t *SimulatedTrade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

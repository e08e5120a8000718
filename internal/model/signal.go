package model

import (
	"encoding/json"
	"time"
)

// Direction represents the trade direction of a signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Condition tags identify which confirmation checks matched a signal.
const (
	CondEMACross    = "ema_cross"
	CondRSIReversal = "rsi_reversal"
	CondSRBounce    = "sr_bounce"
	CondBreakout    = "breakout"
)

// Signal is a multi-confirmation trading signal. Created once by the
// evaluator and immutable thereafter; Confidence equals the number of
// matched conditions and is always >= 2.
type Signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	TF         int       `json:"tf"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	RiskReward float64   `json:"risk_reward"`
	Confidence int       `json:"confidence"`
	Conditions []string  `json:"conditions"`
	CandleTS   time.Time `json:"candle_ts"`
	CreatedAt  time.Time `json:"created_at"`

	// EstimatedMinutes is an informative guess at time-to-target based on
	// recent volatility. It never gates emission.
	EstimatedMinutes float64 `json:"estimated_minutes"`
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

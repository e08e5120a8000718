package model

import (
	"encoding/json"
	"time"
)

// IndicatorSnapshot holds the indicator values computed for one closed
// candle. It is derived purely from the previous snapshot plus the new
// candle's close, so a snapshot never changes once emitted.
type IndicatorSnapshot struct {
	Symbol   string    `json:"symbol"`
	TF       int       `json:"tf"`
	CandleTS time.Time `json:"candle_ts"` // open time of the producing candle
	EMAFast  float64   `json:"ema_fast"`
	EMASlow  float64   `json:"ema_slow"`
	RSI      float64   `json:"rsi"`
}

// JSON returns the JSON-encoded snapshot.
func (s *IndicatorSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

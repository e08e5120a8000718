package model

import (
	"encoding/json"
	"time"
)

// Candle represents an OHLC candle for a single symbol and timeframe.
// TF is the timeframe duration in seconds (e.g. 5, 60, 300).
// A candle is mutated in place by the builder while it is forming and is
// never touched again after Closed is set.
type Candle struct {
	Symbol    string    `json:"symbol"`
	TF        int       `json:"tf"`        // timeframe in seconds
	OpenTime  time.Time `json:"open_time"` // bucket start (UTC, TF-aligned)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	TickCount int       `json:"tick_count"` // 0 for synthetic gap candles
	Closed    bool      `json:"closed"`
}

// Key returns "symbol:tf", the unique key for this candle's series.
func (c *Candle) Key() string {
	return c.Symbol + ":" + itoa(c.TF)
}

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c *Candle) Bearish() bool { return c.Close < c.Open }

// Range returns the full high-low extent of the candle.
func (c *Candle) Range() float64 { return c.High - c.Low }

// Body returns the absolute open-close extent of the candle.
func (c *Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// itoa is a minimal int-to-string without importing strconv in hot path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	buf := [20]byte{}
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

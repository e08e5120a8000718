package model

import (
	"math"
	"time"
)

// Tick represents a single price observation for a symbol.
// Ticks are immutable and must be applied in per-symbol arrival order.
type Tick struct {
	Symbol  string  `json:"symbol"`
	EpochMS int64   `json:"epoch_ms"` // UTC milliseconds
	Price   float64 `json:"price"`
}

// TS returns the tick timestamp as a time.Time (UTC).
func (t Tick) TS() time.Time {
	return time.UnixMilli(t.EpochMS).UTC()
}

// Valid reports whether the tick can be safely applied: a non-empty
// symbol, a positive timestamp, and a finite positive price.
func (t Tick) Valid() bool {
	if t.Symbol == "" || t.EpochMS <= 0 {
		return false
	}
	return t.Price > 0 && !math.IsInf(t.Price, 0) && !math.IsNaN(t.Price)
}

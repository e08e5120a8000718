package model

import "time"

// EventKind identifies the immutable entity carried by a pipeline event.
type EventKind string

const (
	EventCandleClosed     EventKind = "candle_closed"     // payload *Candle
	EventIndicatorUpdated EventKind = "indicator_updated" // payload *IndicatorSnapshot
	EventSignalCreated    EventKind = "signal_created"    // payload *Signal
	EventTradeOpened      EventKind = "trade_opened"      // payload *SimulatedTrade
	EventTradeClosed      EventKind = "trade_closed"      // payload *SimulatedTrade
)

// Event is one finalized entity leaving the pipeline. The payload is never
// mutated after emission.
type Event struct {
	Kind    EventKind `json:"kind"`
	Symbol  string    `json:"symbol"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Sink receives pipeline events. Implementations must be safe for
// concurrent use by multiple symbol workers and must never block the
// caller on downstream I/O.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

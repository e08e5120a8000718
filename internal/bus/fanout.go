// Package bus broadcasts pipeline events to downstream consumers
// (stores, notifiers, metrics) without letting a slow consumer block
// the symbol workers.
package bus

import (
	"context"
	"log"
	"sync"

	"tradepulse/internal/model"
)

// FanOut implements model.Sink: Emit enqueues onto an input channel and
// Run broadcasts to N subscriber channels. If a subscriber's channel is
// full the event is dropped for that consumer only.
type FanOut struct {
	input   chan model.Event
	bufSize int

	mu      sync.RWMutex
	outputs []chan model.Event

	// OnDrop is called with the 0-based subscriber index when an event
	// is dropped for a slow consumer (optional).
	OnDrop func(subscriberIdx int)
	// OnInputDrop is called when the input channel itself is saturated
	// and an emitted event is discarded (optional).
	OnInputDrop func()
}

// New creates a FanOut whose input and subscriber channels hold bufSize
// events each.
func New(bufSize int) *FanOut {
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &FanOut{
		input:   make(chan model.Event, bufSize),
		bufSize: bufSize,
	}
}

// Emit enqueues an event for broadcast. Never blocks; a saturated input
// drops the event. Safe for concurrent use by all symbol workers.
func (f *FanOut) Emit(ev model.Event) {
	select {
	case f.input <- ev:
	default:
		if f.OnInputDrop != nil {
			f.OnInputDrop()
		} else {
			log.Printf("[bus] input full, dropping %s event sym=%s", ev.Kind, ev.Symbol)
		}
	}
}

// Subscribe creates and returns a new output channel. Subscribe before
// starting Run to avoid missing events.
func (f *FanOut) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run broadcasts input events to all subscribers until ctx is
// cancelled, then closes the subscriber channels.
func (f *FanOut) Run(ctx context.Context) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.input:
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- ev:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[bus] output %d full, dropping %s event sym=%s", i, ev.Kind, ev.Symbol)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports (length, capacity) for one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns saturation figures for every subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}

package pipeline

import (
	"context"
	"sync"

	"tradepulse/internal/model"
)

// Item is one unit of work for a symbol worker: a tick, possibly the
// merge of several ticks coalesced under backpressure. High and Low
// carry the extremes of the merged ticks so candle extremes stay exact
// even when intermediate prices were never dequeued individually.
type Item struct {
	model.Tick
	High      float64
	Low       float64
	Coalesced int
}

func itemFrom(t model.Tick) Item {
	return Item{Tick: t, High: t.Price, Low: t.Price, Coalesced: 1}
}

// merge folds a newer tick into the item: price and timestamp are
// latest-wins, extremes widen, counts add.
func (it *Item) merge(t model.Tick) {
	it.Symbol = t.Symbol
	it.EpochMS = t.EpochMS
	it.Price = t.Price
	if t.Price > it.High {
		it.High = t.Price
	}
	if t.Price < it.Low {
		it.Low = t.Price
	}
	it.Coalesced++
}

// Queue is a bounded tick queue that never blocks the producer and
// never reorders. A buffered channel holds the normal flow; when it is
// full, new ticks fold into a single overflow cell. The cell holds only
// ticks newer than everything in the channel and is drained after it,
// so arrival order is preserved under any lag.
type Queue struct {
	ch chan Item

	mu       sync.Mutex
	overflow Item
	hasOver  bool

	// OnCoalesce is called each time a tick is folded into the overflow
	// cell instead of enqueued (optional).
	OnCoalesce func()
}

// NewQueue creates a queue with the given channel capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{ch: make(chan Item, capacity)}
}

// Push enqueues a tick without ever blocking.
func (q *Queue) Push(t model.Tick) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasOver {
		// Anything pushed while the cell is live must stay behind it.
		q.overflow.merge(t)
		if q.OnCoalesce != nil {
			q.OnCoalesce()
		}
		return
	}

	select {
	case q.ch <- itemFrom(t):
	default:
		q.overflow = itemFrom(t)
		q.hasOver = true
		if q.OnCoalesce != nil {
			q.OnCoalesce()
		}
	}
}

// Pop dequeues the next item, draining the channel before the overflow
// cell. Blocks until an item arrives or ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (Item, bool) {
	// Fast path: channel first, cell second.
	select {
	case it := <-q.ch:
		return it, true
	default:
	}

	q.mu.Lock()
	if q.hasOver {
		it := q.overflow
		q.hasOver = false
		q.mu.Unlock()
		return it, true
	}
	q.mu.Unlock()

	select {
	case it := <-q.ch:
		return it, true
	case <-ctx.Done():
		return Item{}, false
	}
}

// TryPop dequeues without blocking; used to drain at teardown.
func (q *Queue) TryPop() (Item, bool) {
	select {
	case it := <-q.ch:
		return it, true
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.hasOver {
		it := q.overflow
		q.hasOver = false
		return it, true
	}
	return Item{}, false
}

// Len reports queued items, overflow cell included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ch)
	if q.hasOver {
		n++
	}
	return n
}

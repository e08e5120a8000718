// Package candle provides an incremental per-symbol OHLC candle builder.
// Each Builder owns one (symbol, timeframe) series and is updated in O(1)
// per tick. A candle is emitted exactly once, when a tick crosses its
// period boundary; a closed candle is never mutated again.
package candle

import (
	"time"

	"tradepulse/internal/model"
)

// Builder aggregates a single symbol's tick stream into fixed-duration
// candles for one timeframe. Designed for single-goroutine usage — the
// symbol worker applies ticks in strict arrival order.
type Builder struct {
	symbol string
	tf     int   // timeframe in seconds
	tfMS   int64 // timeframe in milliseconds

	bucket    int64 // epoch ms of the current candle's open, -1 when none
	cur       model.Candle
	lastTick  int64   // epoch ms of the last applied tick
	lastClose float64 // last known close, used to synthesize gap candles

	// OnReject is called when an out-of-order tick is dropped (optional).
	OnReject func()
}

// New creates a Builder for the given symbol and timeframe in seconds.
func New(symbol string, tf int) *Builder {
	return &Builder{
		symbol: symbol,
		tf:     tf,
		tfMS:   int64(tf) * 1000,
		bucket: -1,
	}
}

// TF returns the builder's timeframe in seconds.
func (b *Builder) TF() int { return b.tf }

// Apply incorporates one tick (possibly a coalesced batch carrying its own
// high/low extremes) and returns any candles closed by it, oldest first.
// Gaps spanning whole periods produce one synthetic zero-tick candle per
// skipped period so indicator recurrences stay aligned to wall-clock time.
// Ticks older than the last applied tick are dropped, never applied.
func (b *Builder) Apply(epochMS int64, price, high, low float64, count int) []model.Candle {
	if epochMS < b.lastTick {
		// Out-of-order tick (upstream clock skew) — reject rather than
		// reopen or corrupt an already-advanced candle.
		if b.OnReject != nil {
			b.OnReject()
		}
		return nil
	}
	b.lastTick = epochMS

	bucket := epochMS - epochMS%b.tfMS

	// First tick ever for this series.
	if b.bucket < 0 {
		b.open(bucket, price, high, low, count)
		b.lastClose = price
		return nil
	}

	if bucket == b.bucket {
		b.update(price, high, low, count)
		b.lastClose = price
		return nil
	}

	// Boundary crossed — close the current candle, synthesize any fully
	// skipped periods, then open a new candle seeded with this tick.
	// Coalesced extremes were printed at or before this tick, so they
	// belong to the closing candle, not the one being opened.
	var closed []model.Candle
	if high > b.cur.High {
		b.cur.High = high
	}
	if low > 0 && low < b.cur.Low {
		b.cur.Low = low
	}
	closed = append(closed, b.seal())

	for missing := b.bucket + b.tfMS; missing < bucket; missing += b.tfMS {
		closed = append(closed, model.Candle{
			Symbol:   b.symbol,
			TF:       b.tf,
			OpenTime: time.UnixMilli(missing).UTC(),
			Open:     b.lastClose,
			High:     b.lastClose,
			Low:      b.lastClose,
			Close:    b.lastClose,
			Closed:   true,
		})
	}

	b.open(bucket, price, price, price, count)
	b.lastClose = price
	return closed
}

// Current returns a copy of the forming candle and whether one exists.
func (b *Builder) Current() (model.Candle, bool) {
	if b.bucket < 0 {
		return model.Candle{}, false
	}
	return b.cur, true
}

// Flush seals and returns the forming candle, if any. Used at teardown.
func (b *Builder) Flush() (model.Candle, bool) {
	if b.bucket < 0 {
		return model.Candle{}, false
	}
	c := b.seal()
	b.bucket = -1
	return c, true
}

func (b *Builder) open(bucket int64, price, high, low float64, count int) {
	if high < price {
		high = price
	}
	if low <= 0 || low > price {
		low = price
	}
	b.bucket = bucket
	b.cur = model.Candle{
		Symbol:    b.symbol,
		TF:        b.tf,
		OpenTime:  time.UnixMilli(bucket).UTC(),
		Open:      price,
		High:      high,
		Low:       low,
		Close:     price,
		TickCount: count,
	}
}

func (b *Builder) update(price, high, low float64, count int) {
	c := &b.cur
	if high > c.High {
		c.High = high
	}
	if low > 0 && low < c.Low {
		c.Low = low
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.TickCount += count
}

func (b *Builder) seal() model.Candle {
	b.cur.Closed = true
	return b.cur
}

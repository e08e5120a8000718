// Package pipeline wires the tick-to-trade flow: one sequential worker
// per symbol owns that symbol's candle builders, indicators, structure
// detectors, evaluators and trade simulator, so every per-symbol state
// mutation happens on a single goroutine in strict tick order.
package pipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"tradepulse/internal/candle"
	"tradepulse/internal/indicator"
	"tradepulse/internal/model"
	"tradepulse/internal/sim"
	"tradepulse/internal/signal"
	"tradepulse/internal/structure"
)

// Config carries everything a worker needs to build its lanes.
type Config struct {
	// TFs is the set of candle timeframes in seconds, e.g. 5, 60, 300.
	TFs []int
	// QueueCap bounds the per-symbol tick queue.
	QueueCap int

	Indicator indicator.Config
	Structure structure.Config
	Signal    signal.Config

	// MaxTradeDuration expires trades that reach neither bound.
	MaxTradeDuration time.Duration

	// Optional hooks, called from producer or worker goroutines.
	OnReject   func()
	OnCoalesce func()
}

// DefaultConfig returns the production pipeline defaults.
func DefaultConfig() Config {
	return Config{
		TFs:              []int{5, 60, 300},
		QueueCap:         256,
		Indicator:        indicator.DefaultConfig(),
		Structure:        structure.DefaultConfig(),
		Signal:           signal.DefaultConfig(),
		MaxTradeDuration: sim.DefaultMaxDuration,
	}
}

// lane is one timeframe's slice of the pipeline. Candles close per
// timeframe; signals from any lane feed the shared per-symbol simulator.
type lane struct {
	tf        int
	builder   *candle.Builder
	engine    *indicator.Engine
	detector  *structure.Detector
	evaluator *signal.Evaluator
}

// Worker runs one symbol's pipeline. Submit may be called from any
// goroutine; everything else happens on the Run goroutine.
type Worker struct {
	symbol string
	queue  *Queue
	sink   model.Sink
	sim    *sim.Simulator
	lanes  []*lane

	onReject func()

	// rejected and coalesced are bumped from both producer and worker
	// goroutines.
	rejected  atomic.Int64
	coalesced atomic.Int64

	lastTS  time.Time
	sawTick bool
}

// NewWorker builds a worker and its lanes for one symbol.
func NewWorker(symbol string, cfg Config, snk model.Sink) *Worker {
	if len(cfg.TFs) == 0 {
		cfg.TFs = DefaultConfig().TFs
	}
	if snk == nil {
		snk = model.SinkFunc(func(model.Event) {})
	}

	w := &Worker{
		symbol:   symbol,
		queue:    NewQueue(cfg.QueueCap),
		sink:     snk,
		sim:      sim.New(symbol, cfg.MaxTradeDuration),
		onReject: cfg.OnReject,
	}
	w.queue.OnCoalesce = func() {
		w.coalesced.Add(1)
		if cfg.OnCoalesce != nil {
			cfg.OnCoalesce()
		}
	}

	w.sim.OnOpen = func(t model.SimulatedTrade) {
		snk.Emit(model.Event{Kind: model.EventTradeOpened, Symbol: symbol, At: t.OpenedAt, Payload: t})
	}
	w.sim.OnClose = func(t model.SimulatedTrade) {
		snk.Emit(model.Event{Kind: model.EventTradeClosed, Symbol: symbol, At: t.ClosedAt, Payload: t})
	}

	for _, tf := range cfg.TFs {
		b := candle.New(symbol, tf)
		b.OnReject = w.reject
		ln := &lane{
			tf:       tf,
			builder:  b,
			engine:   indicator.NewEngine(symbol, tf, cfg.Indicator),
			detector: structure.New(symbol, tf, cfg.Structure),
		}
		ln.evaluator = signal.NewEvaluator(symbol, tf, cfg.Signal, ln.detector, w.sim.Active)
		w.lanes = append(w.lanes, ln)
	}
	return w
}

// Submit queues a tick for processing. Never blocks; under lag ticks
// coalesce in the queue's overflow cell.
func (w *Worker) Submit(t model.Tick) {
	if !t.Valid() || t.Symbol != w.symbol {
		w.reject()
		log.Printf("[pipeline] rejected tick sym=%s ts=%d price=%v", t.Symbol, t.EpochMS, t.Price)
		return
	}
	w.queue.Push(t)
}

func (w *Worker) reject() {
	w.rejected.Add(1)
	if w.onReject != nil {
		w.onReject()
	}
}

// Run processes queued ticks until ctx is cancelled, then drains the
// queue and expires any live trade.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[pipeline] worker started sym=%s lanes=%d", w.symbol, len(w.lanes))
	for {
		it, ok := w.queue.Pop(ctx)
		if !ok {
			break
		}
		w.process(it)
	}
	w.teardown()
}

// process applies one (possibly coalesced) tick. The simulator sees the
// tick before the candle lanes do, so a trade opened from a closed
// candle only fills on a strictly later tick.
func (w *Worker) process(it Item) {
	ts := it.TS()
	w.lastTS, w.sawTick = ts, true

	// Trade resolution first: open, close or expire against this tick.
	// Terminal transitions reach the sink through the simulator hooks.
	w.sim.OnTick(it.Price, ts)

	for _, ln := range w.lanes {
		for _, c := range ln.builder.Apply(it.EpochMS, it.Price, it.High, it.Low, it.Coalesced) {
			w.onClosedCandle(ln, c)
		}
	}
}

// onClosedCandle fans one closed candle through the lane: indicators,
// structure, then evaluation, in that order.
func (w *Worker) onClosedCandle(ln *lane, c model.Candle) {
	w.sink.Emit(model.Event{Kind: model.EventCandleClosed, Symbol: w.symbol, At: c.OpenTime, Payload: c})

	snap, ready := ln.engine.OnCandle(c)
	ln.detector.OnCandle(c)
	if !ready {
		return
	}
	w.sink.Emit(model.Event{Kind: model.EventIndicatorUpdated, Symbol: w.symbol, At: c.OpenTime, Payload: snap})

	sig, ok := ln.evaluator.OnSnapshot(c, snap)
	if !ok {
		return
	}
	w.sink.Emit(model.Event{Kind: model.EventSignalCreated, Symbol: w.symbol, At: sig.CandleTS, Payload: sig})
	w.sim.OnSignal(sig)
}

// teardown drains whatever is still queued, then expires any live trade
// rather than leaving it dangling.
func (w *Worker) teardown() {
	for {
		it, ok := w.queue.TryPop()
		if !ok {
			break
		}
		w.process(it)
	}

	ts := time.Now().UTC()
	if w.sawTick {
		ts = w.lastTS
	}
	if _, ok := w.sim.Teardown(ts); ok {
		log.Printf("[pipeline] expired live trade at teardown sym=%s", w.symbol)
	}
	log.Printf("[pipeline] worker stopped sym=%s rejected=%d coalesced=%d", w.symbol, w.rejected.Load(), w.coalesced.Load())
}

// TradeStats exposes the simulator's counters for diagnostics.
func (w *Worker) TradeStats() sim.Stats { return w.sim.Stats() }

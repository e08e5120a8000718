package pipeline

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"tradepulse/internal/model"
)

// captureSink records events in order; safe for concurrent emits.
type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *captureSink) Emit(ev model.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) byKind(kind model.EventKind) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TFs = []int{5}
	return cfg
}

// runTicks processes a tick sequence synchronously through a worker's
// internal pipeline, bypassing the queue, so tests stay deterministic.
func runTicks(w *Worker, ticks []model.Tick) {
	for _, t := range ticks {
		w.process(itemFrom(t))
	}
}

func syntheticTicks(n int, start int64, stepMS int64, price func(i int) float64) []model.Tick {
	out := make([]model.Tick, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Tick{Symbol: "R_100", EpochMS: start + int64(i)*stepMS, Price: price(i)})
	}
	return out
}

func TestWorkerClosesCandles(t *testing.T) {
	snk := &captureSink{}
	w := NewWorker("R_100", testConfig(), snk)

	// Two ticks inside the first 5s bucket, one in the next.
	runTicks(w, []model.Tick{
		{Symbol: "R_100", EpochMS: 1_000, Price: 100},
		{Symbol: "R_100", EpochMS: 3_000, Price: 101},
		{Symbol: "R_100", EpochMS: 6_000, Price: 102},
	})

	closed := snk.byKind(model.EventCandleClosed)
	if len(closed) != 1 {
		t.Fatalf("closed candles = %d, want 1", len(closed))
	}
	c := closed[0].Payload.(model.Candle)
	if c.Open != 100 || c.Close != 101 || c.TickCount != 2 {
		t.Fatalf("candle = %+v, want open=100 close=101 ticks=2", c)
	}
	if !c.Closed {
		t.Fatal("emitted candle must be closed")
	}
}

func TestWorkerEmitsIndicatorsAfterWarmup(t *testing.T) {
	snk := &captureSink{}
	w := NewWorker("R_100", testConfig(), snk)

	// One tick per 5s bucket: every tick closes the prior candle.
	ticks := syntheticTicks(40, 1_000, 5_000, func(i int) float64 { return 100 + float64(i%5) })
	runTicks(w, ticks)

	closed := len(snk.byKind(model.EventCandleClosed))
	snaps := snk.byKind(model.EventIndicatorUpdated)
	if closed != 39 {
		t.Fatalf("closed candles = %d, want 39", closed)
	}
	// Slow EMA period 21 gates the earliest snapshot.
	if len(snaps) != closed-20 {
		t.Fatalf("snapshots = %d, want %d (warmup of 21 closes)", len(snaps), closed-20)
	}
	for _, ev := range snaps {
		s := ev.Payload.(model.IndicatorSnapshot)
		if s.RSI < 0 || s.RSI > 100 {
			t.Fatalf("rsi out of bounds: %v", s.RSI)
		}
	}
}

func TestWorkerDeterministicReplay(t *testing.T) {
	ticks := syntheticTicks(500, 1_000, 1_700, func(i int) float64 {
		// A jagged but deterministic walk.
		return 100 + float64((i*37)%23) - float64((i*17)%11)
	})

	run := func() []model.Event {
		snk := &captureSink{}
		w := NewWorker("R_100", testConfig(), snk)
		runTicks(w, ticks)
		return snk.events
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("event counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].At != b[i].At {
			t.Fatalf("event %d differs: %v vs %v", i, a[i], b[i])
		}
		ca, okA := a[i].Payload.(model.Candle)
		cb, okB := b[i].Payload.(model.Candle)
		if okA && okB && ca != cb {
			t.Fatalf("candle %d differs on replay: %+v vs %+v", i, ca, cb)
		}
		sa, okA := a[i].Payload.(model.IndicatorSnapshot)
		sb, okB := b[i].Payload.(model.IndicatorSnapshot)
		if okA && okB && sa != sb {
			t.Fatalf("snapshot %d differs on replay: %+v vs %+v", i, sa, sb)
		}
		// Signals and trades must replay identically except for their
		// generated IDs and wall-clock creation stamps.
		ga, okA := a[i].Payload.(model.Signal)
		gb, okB := b[i].Payload.(model.Signal)
		if okA && okB && !reflect.DeepEqual(normalizeSignal(ga), normalizeSignal(gb)) {
			t.Fatalf("signal %d differs on replay: %+v vs %+v", i, ga, gb)
		}
		ta, okA := a[i].Payload.(model.SimulatedTrade)
		tb, okB := b[i].Payload.(model.SimulatedTrade)
		if okA && okB && normalizeTrade(ta) != normalizeTrade(tb) {
			t.Fatalf("trade %d differs on replay: %+v vs %+v", i, ta, tb)
		}
	}
}

// TestWorkerTradeReplayMatchesFieldByField drives a fixed signal through
// the simulator twice over the same ticks and requires the resulting
// trade events to agree on every field except generated IDs.
func TestWorkerTradeReplayMatchesFieldByField(t *testing.T) {
	run := func() []model.Event {
		snk := &captureSink{}
		w := NewWorker("R_100", testConfig(), snk)
		w.process(itemFrom(model.Tick{Symbol: "R_100", EpochMS: 1_000, Price: 100}))
		w.sim.OnSignal(model.Signal{
			ID: "sig-1", Symbol: "R_100", Direction: model.DirectionBuy,
			EntryPrice: 100, StopLoss: 98, TakeProfit: 104,
		})
		// Fill on the next tick, then walk to the take-profit.
		runTicks(w, []model.Tick{
			{Symbol: "R_100", EpochMS: 2_000, Price: 100.2},
			{Symbol: "R_100", EpochMS: 3_000, Price: 101},
			{Symbol: "R_100", EpochMS: 4_000, Price: 104.5},
		})
		return snk.events
	}

	a, b := run(), run()
	closedA := filterKind(a, model.EventTradeClosed)
	closedB := filterKind(b, model.EventTradeClosed)
	if len(closedA) != 1 || len(closedB) != 1 {
		t.Fatalf("closed trades = %d/%d, want 1 each", len(closedA), len(closedB))
	}

	ta := closedA[0].Payload.(model.SimulatedTrade)
	tb := closedB[0].Payload.(model.SimulatedTrade)
	if normalizeTrade(ta) != normalizeTrade(tb) {
		t.Fatalf("trade differs on replay: %+v vs %+v", ta, tb)
	}
	if ta.Status != model.TradeProfit || ta.EntryPrice != 100.2 || ta.ClosePrice != 104.5 {
		t.Fatalf("trade = %+v, want PROFIT filled at 100.2 closed at 104.5", ta)
	}
	if ta.DurationSeconds != 2 {
		t.Fatalf("duration = %v, want 2s from fill to close", ta.DurationSeconds)
	}
}

func normalizeSignal(s model.Signal) model.Signal {
	s.ID = ""
	s.CreatedAt = time.Time{}
	return s
}

func normalizeTrade(tr model.SimulatedTrade) model.SimulatedTrade {
	tr.ID = ""
	tr.SignalID = ""
	return tr
}

func filterKind(evs []model.Event, kind model.EventKind) []model.Event {
	var out []model.Event
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestWorkerCoalescedExtremesReachCandles(t *testing.T) {
	snk := &captureSink{}
	w := NewWorker("R_100", testConfig(), snk)

	// A merged item carrying extremes never seen as individual prices.
	it := itemFrom(model.Tick{Symbol: "R_100", EpochMS: 1_000, Price: 100})
	it.merge(model.Tick{Symbol: "R_100", EpochMS: 2_000, Price: 108})
	it.merge(model.Tick{Symbol: "R_100", EpochMS: 3_000, Price: 94})
	it.merge(model.Tick{Symbol: "R_100", EpochMS: 4_000, Price: 101})
	w.process(it)
	w.process(itemFrom(model.Tick{Symbol: "R_100", EpochMS: 6_000, Price: 101}))

	closed := snk.byKind(model.EventCandleClosed)
	if len(closed) != 1 {
		t.Fatalf("closed candles = %d, want 1", len(closed))
	}
	c := closed[0].Payload.(model.Candle)
	if c.High != 108 || c.Low != 94 {
		t.Fatalf("extremes = %v/%v, want 108/94 from the coalesced item", c.High, c.Low)
	}
	if c.Close != 101 || c.TickCount != 4 {
		t.Fatalf("close/ticks = %v/%d, want 101/4", c.Close, c.TickCount)
	}
}

func TestManagerRoutesAndStops(t *testing.T) {
	snk := &captureSink{}
	m := NewManager(testConfig(), snk)
	m.Start(context.Background())

	for i := 0; i < 30; i++ {
		m.Submit(model.Tick{Symbol: "R_100", EpochMS: int64(i+1) * 5_000, Price: 100 + float64(i%3)})
		m.Submit(model.Tick{Symbol: "R_50", EpochMS: int64(i+1) * 5_000, Price: 50 + float64(i%3)})
	}

	// Give workers a moment to drain, then stop (which also drains).
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	closed := snk.byKind(model.EventCandleClosed)
	bySym := map[string]int{}
	for _, ev := range closed {
		bySym[ev.Symbol]++
	}
	if bySym["R_100"] != 29 || bySym["R_50"] != 29 {
		t.Fatalf("closed per symbol = %v, want 29 each", bySym)
	}
}

func TestManagerRemoveTearsDown(t *testing.T) {
	snk := &captureSink{}
	m := NewManager(testConfig(), snk)
	m.Start(context.Background())
	m.Track("R_100")

	if got := len(m.Symbols()); got != 1 {
		t.Fatalf("symbols = %d, want 1", got)
	}
	m.Remove("R_100")
	if got := len(m.Symbols()); got != 0 {
		t.Fatalf("symbols after remove = %d, want 0", got)
	}
	m.Stop()
}

func TestWorkerRejectsMalformedTicks(t *testing.T) {
	snk := &captureSink{}
	w := NewWorker("R_100", testConfig(), snk)

	w.Submit(model.Tick{Symbol: "", EpochMS: 1_000, Price: 100})
	w.Submit(model.Tick{Symbol: "R_100", EpochMS: 0, Price: 100})
	w.Submit(model.Tick{Symbol: "R_100", EpochMS: 1_000, Price: -1})

	if w.queue.Len() != 0 {
		t.Fatalf("malformed ticks must not enqueue, len = %d", w.queue.Len())
	}
	if w.rejected.Load() != 3 {
		t.Fatalf("rejected = %d, want 3", w.rejected.Load())
	}
}

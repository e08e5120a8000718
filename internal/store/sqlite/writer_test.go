package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradepulse/internal/model"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// runEvents pushes events through Run and waits for the final flush.
func runEvents(t *testing.T, w *Writer, events []model.Event) {
	t.Helper()
	ch := make(chan model.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not drain in time")
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := newTestWriter(t)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	candle := model.Candle{
		Symbol: "R_100", TF: 60, OpenTime: ts,
		Open: 100, High: 101, Low: 99.5, Close: 100.5,
		TickCount: 12, Closed: true,
	}
	sig := model.Signal{
		ID: "sig-1", Symbol: "R_100", TF: 60, Direction: model.DirectionBuy,
		EntryPrice: 100.5, StopLoss: 99.5, TakeProfit: 102.5,
		RiskReward: 2.0, Confidence: 2,
		Conditions: []string{model.CondEMACross, model.CondSRBounce},
		CandleTS:   ts, CreatedAt: ts.Add(time.Second),
	}
	trade := model.SimulatedTrade{
		ID: "trd-1", SignalID: "sig-1", Symbol: "R_100",
		Direction: model.DirectionBuy, EntryPrice: 100.6,
		StopLoss: 99.5, TakeProfit: 102.5, Status: model.TradeProfit,
		OpenedAt: ts.Add(time.Minute), ClosedAt: ts.Add(3 * time.Minute),
		ClosePrice: 102.5, PnLPercent: 1.9, RRReal: 1.7, DurationSeconds: 120,
	}

	runEvents(t, w, []model.Event{
		{Kind: model.EventCandleClosed, Symbol: "R_100", At: ts, Payload: candle},
		{Kind: model.EventSignalCreated, Symbol: "R_100", At: ts, Payload: sig},
		{Kind: model.EventTradeClosed, Symbol: "R_100", At: trade.ClosedAt, Payload: trade},
	})

	r := NewReader(w)

	sigs, err := r.RecentSignals("R_100", 10)
	if err != nil {
		t.Fatalf("RecentSignals: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	got := sigs[0]
	if got.ID != "sig-1" || got.Direction != model.DirectionBuy {
		t.Errorf("unexpected signal: %+v", got)
	}
	if len(got.Conditions) != 2 || got.Conditions[0] != model.CondEMACross {
		t.Errorf("conditions did not survive: %v", got.Conditions)
	}
	if !got.CandleTS.Equal(ts) {
		t.Errorf("candle ts = %v, want %v", got.CandleTS, ts)
	}

	trades, err := r.RecentTrades("R_100", 10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Status != model.TradeProfit || trades[0].ClosePrice != 102.5 {
		t.Errorf("unexpected trade: %+v", trades[0])
	}

	last, err := r.LastCandleTS("R_100", 60)
	if err != nil {
		t.Fatalf("LastCandleTS: %v", err)
	}
	if !last.Equal(ts) {
		t.Errorf("last candle ts = %v, want %v", last, ts)
	}
}

func TestWriterSkipsVolatileKinds(t *testing.T) {
	w := newTestWriter(t)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	open := model.SimulatedTrade{
		ID: "trd-open", SignalID: "sig-x", Symbol: "R_100",
		Direction: model.DirectionBuy, Status: model.TradeOpen,
		OpenedAt: ts,
	}
	runEvents(t, w, []model.Event{
		{Kind: model.EventIndicatorUpdated, Symbol: "R_100", At: ts, Payload: model.IndicatorSnapshot{Symbol: "R_100", TF: 60}},
		{Kind: model.EventTradeOpened, Symbol: "R_100", At: ts, Payload: open},
	})

	trades, err := NewReader(w).RecentTrades("R_100", 10)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("volatile events must not persist, got %d trades", len(trades))
	}
}

func TestWriterUpsertsOnReplay(t *testing.T) {
	w := newTestWriter(t)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := model.Candle{Symbol: "R_100", TF: 60, OpenTime: ts, Open: 100, High: 101, Low: 99, Close: 100.5, TickCount: 5, Closed: true}
	ev := model.Event{Kind: model.EventCandleClosed, Symbol: "R_100", At: ts, Payload: c}

	// Same candle twice, as a crash-replay would produce.
	runEvents(t, w, []model.Event{ev, ev})

	var n int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM candles`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 candle row after replay, got %d", n)
	}
}

package signal

import (
	"testing"
	"time"

	"tradepulse/internal/model"
)

// stubStructure scripts the structure detector's answers so conditions
// can be toggled independently of candle history.
type stubStructure struct {
	bounce        bool
	reject        bool
	brkUp         bool
	brkDown       bool
	consolidating bool

	support       float64
	hasSupport    bool
	resistance    float64
	hasResistance bool
	swingLow      float64
	hasSwingLow   bool
	swingHigh     float64
	hasSwingHigh  bool
	avgRange      float64
}

func (s *stubStructure) BounceOffSupport(model.Candle) bool      { return s.bounce }
func (s *stubStructure) RejectionAtResistance(model.Candle) bool { return s.reject }
func (s *stubStructure) BreakoutAbove(model.Candle) bool         { return s.brkUp }
func (s *stubStructure) BreakoutBelow(model.Candle) bool         { return s.brkDown }
func (s *stubStructure) Consolidating() bool                     { return s.consolidating }

func (s *stubStructure) NearestSupport(float64) (float64, bool) {
	return s.support, s.hasSupport
}
func (s *stubStructure) NearestResistance(float64) (float64, bool) {
	return s.resistance, s.hasResistance
}
func (s *stubStructure) LastSwingLow() (float64, bool)  { return s.swingLow, s.hasSwingLow }
func (s *stubStructure) LastSwingHigh() (float64, bool) { return s.swingHigh, s.hasSwingHigh }
func (s *stubStructure) AvgRange(int) float64           { return s.avgRange }

var evalBase = time.Unix(1_700_000_000, 0).UTC()

func evalCandle(i int, close float64) model.Candle {
	return model.Candle{
		Symbol:   "R_100",
		TF:       60,
		OpenTime: evalBase.Add(time.Duration(i) * time.Minute),
		Open:     close - 0.5,
		High:     close + 0.5,
		Low:      close - 1,
		Close:    close,
		Closed:   true,
	}
}

func snap(i int, fast, slow, rsi float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Symbol:   "R_100",
		TF:       60,
		CandleTS: evalBase.Add(time.Duration(i) * time.Minute),
		EMAFast:  fast,
		EMASlow:  slow,
		RSI:      rsi,
	}
}

func newTestEvaluator(det structureView, busy func() bool) *Evaluator {
	return NewEvaluator("R_100", 60, DefaultConfig(), det, busy)
}

func TestFirstSnapshotOnlyPrimes(t *testing.T) {
	det := &stubStructure{bounce: true, brkUp: true, support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	if _, ok := e.OnSnapshot(evalCandle(0, 100), snap(0, 99, 100, 50)); ok {
		t.Fatal("first snapshot must never emit — crosses need two readings")
	}
}

func TestSingleConditionIsNotEnough(t *testing.T) {
	det := &stubStructure{support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 99, 100, 50))
	// EMA cross up, nothing else.
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 101, 100, 50)); ok {
		t.Fatal("one condition must not produce a signal")
	}
}

func TestTwoBullishConditionsEmitBuy(t *testing.T) {
	det := &stubStructure{support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	// Prime: EMA fast below slow, RSI oversold and still falling.
	e.OnSnapshot(evalCandle(0, 100), snap(0, 99, 100, 30))
	// Cross up + RSI turning up from oversold.
	sig, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 101, 100, 33))
	if !ok {
		t.Fatal("expected a BUY signal from ema_cross + rsi_reversal")
	}
	if sig.Direction != model.DirectionBuy {
		t.Fatalf("direction = %s, want BUY", sig.Direction)
	}
	if sig.Confidence != 2 || len(sig.Conditions) != 2 {
		t.Fatalf("confidence = %d conditions = %v, want 2 matched", sig.Confidence, sig.Conditions)
	}
	if sig.EntryPrice != 100 || sig.StopLoss != 98 {
		t.Fatalf("entry/sl = %v/%v, want 100/98 (structural stop)", sig.EntryPrice, sig.StopLoss)
	}
	if sig.TakeProfit != 104 {
		t.Fatalf("tp = %v, want 104 (2x the stop distance)", sig.TakeProfit)
	}
	if sig.ID == "" {
		t.Fatal("signal must carry an id")
	}
	if sig.EstimatedMinutes != 4 {
		t.Fatalf("estimated minutes = %v, want 4 (4 points at 1 point/candle, 1m candles)", sig.EstimatedMinutes)
	}
}

func TestMixedDirectionsDiscarded(t *testing.T) {
	// Bullish cross + rsi turn vs bearish rejection + breakdown: 2 vs 2.
	det := &stubStructure{reject: true, brkDown: true, support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 99, 100, 30))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 101, 100, 33)); ok {
		t.Fatal("tied buy/sell conditions must be discarded")
	}
	if e.Stats().FilteredMixed != 1 {
		t.Fatalf("FilteredMixed = %d, want 1", e.Stats().FilteredMixed)
	}
}

func TestCooldownSuppressesFollowUp(t *testing.T) {
	det := &stubStructure{bounce: true, brkUp: true, support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50)); !ok {
		t.Fatal("expected first signal")
	}
	// Next two candles fall inside the 3-bar cooldown.
	if _, ok := e.OnSnapshot(evalCandle(2, 100), snap(2, 100, 100, 50)); ok {
		t.Fatal("signal inside cooldown window")
	}
	if _, ok := e.OnSnapshot(evalCandle(3, 100), snap(3, 100, 100, 50)); ok {
		t.Fatal("signal inside cooldown window")
	}
	// Exactly 3 bars after the emission the window has elapsed.
	if _, ok := e.OnSnapshot(evalCandle(4, 100), snap(4, 100, 100, 50)); !ok {
		t.Fatal("expected signal after cooldown elapsed")
	}
	if e.Stats().FilteredCooldown != 2 {
		t.Fatalf("FilteredCooldown = %d, want 2", e.Stats().FilteredCooldown)
	}
}

func TestConsolidationBlocksSignals(t *testing.T) {
	det := &stubStructure{bounce: true, brkUp: true, consolidating: true, support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50)); ok {
		t.Fatal("consolidating market must not produce signals")
	}
	if e.Stats().FilteredConsolidation != 1 {
		t.Fatalf("FilteredConsolidation = %d, want 1", e.Stats().FilteredConsolidation)
	}
}

func TestBusySymbolBlocksSignals(t *testing.T) {
	det := &stubStructure{bounce: true, brkUp: true, support: 98, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, func() bool { return true })

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50)); ok {
		t.Fatal("an open trade must suppress new signals")
	}
}

func TestStopInsideNoiseRejected(t *testing.T) {
	// Support 0.01% below entry — under the 0.02% minimum.
	det := &stubStructure{bounce: true, brkUp: true, support: 99.99, hasSupport: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50)); ok {
		t.Fatal("stop inside the noise floor must reject the signal")
	}
	if e.Stats().FilteredRisk != 1 {
		t.Fatalf("FilteredRisk = %d, want 1", e.Stats().FilteredRisk)
	}
}

func TestNoStructuralStopNoSignal(t *testing.T) {
	det := &stubStructure{bounce: true, brkUp: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	if _, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50)); ok {
		t.Fatal("no support or swing low below entry: no stop, no signal")
	}
}

func TestSellSignalUsesResistanceStop(t *testing.T) {
	det := &stubStructure{reject: true, brkDown: true, resistance: 101, hasResistance: true, avgRange: 1}
	e := newTestEvaluator(det, nil)

	e.OnSnapshot(evalCandle(0, 100), snap(0, 100, 100, 50))
	sig, ok := e.OnSnapshot(evalCandle(1, 100), snap(1, 100, 100, 50))
	if !ok {
		t.Fatal("expected a SELL signal from rejection + breakdown")
	}
	if sig.Direction != model.DirectionSell {
		t.Fatalf("direction = %s, want SELL", sig.Direction)
	}
	if sig.StopLoss != 101 || sig.TakeProfit != 98 {
		t.Fatalf("sl/tp = %v/%v, want 101/98", sig.StopLoss, sig.TakeProfit)
	}
}

package sim

import (
	"math"
	"testing"
	"time"

	"tradepulse/internal/model"
)

var simBase = time.Unix(1_700_000_000, 0).UTC()

func buySignal() model.Signal {
	return model.Signal{
		ID:         "sig-1",
		Symbol:     "R_100",
		TF:         60,
		Direction:  model.DirectionBuy,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 106,
		RiskReward: 3.0,
	}
}

func at(sec int) time.Time { return simBase.Add(time.Duration(sec) * time.Second) }

func TestProfitRun(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	if !s.OnSignal(buySignal()) {
		t.Fatal("signal should be accepted")
	}

	// First tick fills the pending trade.
	if _, closed := s.OnTick(100, at(0)); closed {
		t.Fatal("fill tick must not close the trade")
	}
	if !s.Active() {
		t.Fatal("trade should be open")
	}

	// Price walks to TP before SL.
	s.OnTick(102, at(1))
	s.OnTick(104, at(2))
	trade, closed := s.OnTick(106, at(3))
	if !closed {
		t.Fatal("expected terminal state at take-profit")
	}
	if trade.Status != model.TradeProfit {
		t.Fatalf("status = %s, want PROFIT", trade.Status)
	}
	if math.Abs(trade.PnLPercent-6.0) > 1e-9 {
		t.Fatalf("pnl = %v, want 6.0", trade.PnLPercent)
	}
	if math.Abs(trade.RRReal-3.0) > 1e-9 {
		t.Fatalf("rrReal = %v, want 3.0", trade.RRReal)
	}
	if s.Active() {
		t.Fatal("terminal trade should clear the active slot")
	}
}

func TestLossRun(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	s.OnSignal(buySignal())
	s.OnTick(100, at(0))

	s.OnTick(99, at(1))
	trade, closed := s.OnTick(98, at(2))
	if !closed || trade.Status != model.TradeLoss {
		t.Fatalf("status = %s closed=%v, want LOSS", trade.Status, closed)
	}
	if math.Abs(trade.PnLPercent-(-2.0)) > 1e-9 {
		t.Fatalf("pnl = %v, want -2.0", trade.PnLPercent)
	}
	if math.Abs(trade.RRReal-(-1.0)) > 1e-9 {
		t.Fatalf("rrReal = %v, want -1.0", trade.RRReal)
	}
}

func TestSellTrade(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	s.OnSignal(model.Signal{
		ID: "sig-2", Symbol: "R_100", Direction: model.DirectionSell,
		EntryPrice: 100, StopLoss: 101, TakeProfit: 98,
	})
	s.OnTick(100, at(0))

	trade, closed := s.OnTick(98, at(1))
	if !closed || trade.Status != model.TradeProfit {
		t.Fatalf("status = %s closed=%v, want PROFIT", trade.Status, closed)
	}
	if math.Abs(trade.PnLPercent-2.0) > 1e-9 {
		t.Fatalf("sell pnl = %v, want 2.0", trade.PnLPercent)
	}
}

func TestExpiryUsesLastPrice(t *testing.T) {
	s := New("R_100", time.Minute)
	s.OnSignal(buySignal())
	s.OnTick(100, at(0))

	s.OnTick(101, at(30))
	// Next tick is past openedAt+maxDuration; trade expires at this price.
	trade, closed := s.OnTick(100.5, at(61))
	if !closed || trade.Status != model.TradeExpired {
		t.Fatalf("status = %s closed=%v, want EXPIRED", trade.Status, closed)
	}
	if math.Abs(trade.PnLPercent-0.5) > 1e-9 {
		t.Fatalf("pnl = %v, want 0.5", trade.PnLPercent)
	}
}

func TestExpiryBeatsBounds(t *testing.T) {
	// A tick that is both past expiry and beyond TP closes EXPIRED.
	s := New("R_100", time.Minute)
	s.OnSignal(buySignal())
	s.OnTick(100, at(0))

	trade, closed := s.OnTick(107, at(61))
	if !closed || trade.Status != model.TradeExpired {
		t.Fatalf("status = %s closed=%v, want EXPIRED to win over PROFIT", trade.Status, closed)
	}
}

func TestSecondSignalDroppedWhileLive(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	if !s.OnSignal(buySignal()) {
		t.Fatal("first signal should be accepted")
	}
	if s.OnSignal(buySignal()) {
		t.Fatal("second signal must be dropped while a trade is pending")
	}
	s.OnTick(100, at(0))
	if s.OnSignal(buySignal()) {
		t.Fatal("second signal must be dropped while a trade is open")
	}
	if s.Stats().Dropped != 2 {
		t.Fatalf("Dropped = %d, want 2", s.Stats().Dropped)
	}
}

func TestGapTieBreakPrefersNearerBound(t *testing.T) {
	// A BUY cannot have one price on both sides of its bounds, so the
	// dual-hit branch is exercised with a degenerate SELL whose bounds
	// straddle the price: price >= SL and price <= TP simultaneously.
	s := New("R_100", 30*time.Minute)
	s.OnSignal(model.Signal{
		ID: "sig-3", Symbol: "R_100", Direction: model.DirectionSell,
		EntryPrice: 100, StopLoss: 98, TakeProfit: 106,
	})
	s.OnTick(100, at(0))
	trade, closed := s.OnTick(100, at(1))
	if !closed {
		t.Fatal("dual-hit tick must close the trade")
	}
	// prev=100: the stop at 98 is nearer than the target at 106 → LOSS.
	if trade.Status != model.TradeLoss {
		t.Fatalf("status = %s, want LOSS (stop nearer to previous price)", trade.Status)
	}
}

func TestTeardownExpiresOpenTrade(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	s.OnSignal(buySignal())
	s.OnTick(100, at(0))
	s.OnTick(101, at(1))

	trade, ok := s.Teardown(at(2))
	if !ok || trade.Status != model.TradeExpired {
		t.Fatalf("status = %s ok=%v, want EXPIRED", trade.Status, ok)
	}
	if trade.ClosePrice != 101 {
		t.Fatalf("close price = %v, want last seen tick 101", trade.ClosePrice)
	}
	if s.Active() {
		t.Fatal("teardown must clear the active trade")
	}
}

func TestTeardownFlushesPendingTrade(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	s.OnSignal(buySignal())

	trade, ok := s.Teardown(at(0))
	if !ok || trade.Status != model.TradeExpired {
		t.Fatalf("status = %s ok=%v, want EXPIRED", trade.Status, ok)
	}
	if trade.PnLPercent != 0 {
		t.Fatalf("never-filled trade must close flat, pnl = %v", trade.PnLPercent)
	}
}

func TestCloseHookFires(t *testing.T) {
	s := New("R_100", 30*time.Minute)
	var got model.SimulatedTrade
	s.OnClose = func(tr model.SimulatedTrade) { got = tr }

	s.OnSignal(buySignal())
	s.OnTick(100, at(0))
	s.OnTick(106, at(1))

	if got.Status != model.TradeProfit {
		t.Fatalf("hook saw status %s, want PROFIT", got.Status)
	}
}

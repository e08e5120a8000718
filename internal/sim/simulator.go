// Package sim drives paper trades through their lifecycle against the
// live tick stream. One Simulator per symbol, owned by the symbol
// worker; at most one non-terminal trade exists at a time.
package sim

import (
	"log"
	"time"

	"github.com/google/uuid"

	"tradepulse/internal/model"
)

// DefaultMaxDuration closes trades that reach neither bound in time.
const DefaultMaxDuration = 30 * time.Minute

// Stats counts trade outcomes.
type Stats struct {
	Opened  int
	Wins    int
	Losses  int
	Expired int
	Dropped int // signals rejected because a trade was already live
}

// Simulator owns the single active trade for one symbol.
type Simulator struct {
	symbol      string
	maxDuration time.Duration

	active *model.SimulatedTrade

	// prevPrice is the tick before the current one; it breaks ties when
	// one gapping tick crosses both bounds at once.
	prevPrice float64
	hasPrev   bool

	lastPrice float64
	lastSeen  bool

	// OnOpen and OnClose fire on fills and terminal transitions.
	// Optional; must not block.
	OnOpen  func(model.SimulatedTrade)
	OnClose func(model.SimulatedTrade)

	stats Stats
}

// New creates a simulator for one symbol. maxDuration <= 0 selects the
// default.
func New(symbol string, maxDuration time.Duration) *Simulator {
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Simulator{symbol: symbol, maxDuration: maxDuration}
}

// Active reports whether a non-terminal trade exists.
func (s *Simulator) Active() bool { return s.active != nil }

// OnSignal accepts a signal into a PENDING trade. Returns false when a
// non-terminal trade already exists; the signal is dropped.
func (s *Simulator) OnSignal(sig model.Signal) bool {
	if s.active != nil {
		s.stats.Dropped++
		log.Printf("[sim] signal dropped, trade already live sym=%s signal=%s", s.symbol, sig.ID)
		return false
	}

	s.active = &model.SimulatedTrade{
		ID:          uuid.NewString(),
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		SignalEntry: sig.EntryPrice,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		Status:      model.TradePending,
		MaxDuration: s.maxDuration,
	}
	log.Printf("[sim] trade pending id=%s sym=%s %s sl=%.5f tp=%.5f",
		s.active.ID, s.symbol, sig.Direction, sig.StopLoss, sig.TakeProfit)
	return true
}

// OnTick applies one tick: a PENDING trade fills at this price, an OPEN
// trade is checked for expiry and then its bounds. Ticks must arrive in
// order. Returns the trade and true when it reached a terminal state on
// this tick.
func (s *Simulator) OnTick(price float64, ts time.Time) (model.SimulatedTrade, bool) {
	defer func() {
		s.prevPrice, s.hasPrev = price, true
		s.lastPrice, s.lastSeen = price, true
	}()

	t := s.active
	if t == nil {
		return model.SimulatedTrade{}, false
	}

	if t.Status == model.TradePending {
		// Fill on the first tick after the signal. The fill price is
		// this tick's price, not the signal's close, so slippage is
		// honest.
		if err := t.Activate(price, ts); err != nil {
			log.Printf("[sim] activate failed id=%s: %v", t.ID, err)
			return model.SimulatedTrade{}, false
		}
		s.stats.Opened++
		log.Printf("[sim] trade open id=%s sym=%s fill=%.5f slip=%.5f",
			t.ID, s.symbol, price, abs(price-t.SignalEntry))
		if s.OnOpen != nil {
			s.OnOpen(*t)
		}
		return model.SimulatedTrade{}, false
	}

	// Expiry takes precedence over bound checks.
	if t.Expired(ts) {
		return s.close(t, price, model.TradeExpired, ts), true
	}

	var slHit, tpHit bool
	if t.Direction == model.DirectionBuy {
		slHit = price <= t.StopLoss
		tpHit = price >= t.TakeProfit
	} else {
		slHit = price >= t.StopLoss
		tpHit = price <= t.TakeProfit
	}

	switch {
	case slHit && tpHit:
		// One gapping tick crossed both bounds. Resolve to the bound
		// nearer the previous price; an exact tie loses.
		ref := price
		if s.hasPrev {
			ref = s.prevPrice
		}
		if abs(t.TakeProfit-ref) < abs(t.StopLoss-ref) {
			return s.close(t, price, model.TradeProfit, ts), true
		}
		return s.close(t, price, model.TradeLoss, ts), true
	case slHit:
		return s.close(t, price, model.TradeLoss, ts), true
	case tpHit:
		return s.close(t, price, model.TradeProfit, ts), true
	}

	return model.SimulatedTrade{}, false
}

// Teardown expires any non-terminal trade at the last known price.
// Returns the expired trade and true if one existed.
func (s *Simulator) Teardown(ts time.Time) (model.SimulatedTrade, bool) {
	t := s.active
	if t == nil {
		return model.SimulatedTrade{}, false
	}

	price := t.SignalEntry
	if s.lastSeen {
		price = s.lastPrice
	}
	if t.Status == model.TradePending {
		// Never filled; flush it through OPEN so the close accounting
		// holds, at zero PnL.
		_ = t.Activate(price, ts)
		s.stats.Opened++
	}
	return s.close(t, price, model.TradeExpired, ts), true
}

func (s *Simulator) close(t *model.SimulatedTrade, price float64, status model.TradeStatus, ts time.Time) model.SimulatedTrade {
	if err := t.Close(price, status, ts); err != nil {
		log.Printf("[sim] close failed id=%s: %v", t.ID, err)
		return *t
	}
	switch status {
	case model.TradeProfit:
		s.stats.Wins++
	case model.TradeLoss:
		s.stats.Losses++
	case model.TradeExpired:
		s.stats.Expired++
	}
	log.Printf("[sim] trade %s id=%s sym=%s close=%.5f pnl=%.4f%% rr=%.2f dur=%.0fs",
		status, t.ID, s.symbol, price, t.PnLPercent, t.RRReal, t.DurationSeconds)
	s.active = nil
	if s.OnClose != nil {
		s.OnClose(*t)
	}
	return *t
}

// Stats returns a copy of the outcome counters.
func (s *Simulator) Stats() Stats { return s.stats }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

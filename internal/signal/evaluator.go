// Package signal evaluates closed candles against multi-confirmation
// trading conditions and emits immutable signals. One Evaluator per
// (symbol, timeframe), driven by the symbol worker, so all state here
// is single-goroutine.
package signal

import (
	"log"
	"time"

	"github.com/google/uuid"

	"tradepulse/internal/model"
	"tradepulse/internal/risk"
)

// Config tunes signal evaluation.
type Config struct {
	// MinConfirmations is the minimum number of agreeing conditions.
	MinConfirmations int
	// RRRatio sizes the take-profit as a multiple of the stop distance.
	RRRatio float64
	// RSIOversold / RSIOverbought bound the reversal extreme zones.
	RSIOversold   float64
	RSIOverbought float64
	// MinStopPct rejects stops closer than this fraction of the entry;
	// a stop inside market noise would be hit immediately.
	MinStopPct float64
	// CooldownBars suppresses new signals for this many candle periods
	// after an emission, measured on candle timestamps so replays are
	// deterministic.
	CooldownBars int
	// Band is the acceptable risk/reward range.
	Band risk.Band
	// AvgRangePeriod is the window for the volatility estimate behind
	// the informative time-to-target figure.
	AvgRangePeriod int

	// OnFiltered is called with the suppression reason each time a
	// candle is evaluated but no signal is emitted (optional).
	OnFiltered func(reason string)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfirmations: 2,
		RRRatio:          2.0,
		RSIOversold:      35,
		RSIOverbought:    65,
		MinStopPct:       0.0002,
		CooldownBars:     3,
		Band:             risk.Band{Min: 1.0, Max: 3.0},
		AvgRangePeriod:   10,
	}
}

// Stats counts evaluator outcomes for diagnostics.
type Stats struct {
	Evaluated             int
	Emitted               int
	FilteredCooldown      int
	FilteredConsolidation int
	FilteredMixed         int
	FilteredRisk          int
	FilteredBusy          int
}

// Evaluator holds per-(symbol, timeframe) evaluation state: the prior
// indicator snapshot and the last emission time.
type Evaluator struct {
	symbol string
	tf     int
	cfg    Config
	det    structureView

	// busy reports whether a non-terminal trade already exists for the
	// symbol; signals are suppressed while it does. Nil means never.
	busy func() bool

	prev    model.IndicatorSnapshot
	hasPrev bool

	lastSignal    time.Time
	hasLastSignal bool

	stats Stats
}

// NewEvaluator creates an evaluator bound to one symbol, timeframe and
// structure detector.
func NewEvaluator(symbol string, tf int, cfg Config, det structureView, busy func() bool) *Evaluator {
	if cfg.MinConfirmations <= 0 {
		cfg.MinConfirmations = 2
	}
	if cfg.AvgRangePeriod <= 0 {
		cfg.AvgRangePeriod = 10
	}
	return &Evaluator{symbol: symbol, tf: tf, cfg: cfg, det: det, busy: busy}
}

func (e *Evaluator) notifyFiltered(reason string) {
	if e.cfg.OnFiltered != nil {
		e.cfg.OnFiltered(reason)
	}
}

// OnSnapshot evaluates one closed candle with its indicator snapshot.
// Must be called in candle order. Returns a signal when at least
// MinConfirmations conditions agree on a direction and the derived risk
// passes validation.
func (e *Evaluator) OnSnapshot(c model.Candle, snap model.IndicatorSnapshot) (model.Signal, bool) {
	e.stats.Evaluated++

	// The previous snapshot is consumed by the cross/turn checks; store
	// the current one whatever happens below.
	prev, hasPrev := e.prev, e.hasPrev
	e.prev, e.hasPrev = snap, true

	if !hasPrev {
		// Crosses and turns need two readings.
		return model.Signal{}, false
	}

	if e.busy != nil && e.busy() {
		e.stats.FilteredBusy++
		e.notifyFiltered("busy")
		return model.Signal{}, false
	}

	cooldown := time.Duration(e.cfg.CooldownBars*e.tf) * time.Second
	if e.hasLastSignal && c.OpenTime.Sub(e.lastSignal) < cooldown {
		e.stats.FilteredCooldown++
		e.notifyFiltered("cooldown")
		return model.Signal{}, false
	}

	if e.det.Consolidating() {
		e.stats.FilteredConsolidation++
		e.notifyFiltered("consolidation")
		return model.Signal{}, false
	}

	var buy, sell []string
	tally := func(dir model.Direction, ok bool, tag string) {
		if !ok {
			return
		}
		if dir == model.DirectionBuy {
			buy = append(buy, tag)
		} else {
			sell = append(sell, tag)
		}
	}

	dir, ok := emaCross(prev, snap)
	tally(dir, ok, model.CondEMACross)
	dir, ok = rsiReversal(prev, snap, e.cfg.RSIOversold, e.cfg.RSIOverbought)
	tally(dir, ok, model.CondRSIReversal)
	dir, ok = srBounce(e.det, c)
	tally(dir, ok, model.CondSRBounce)
	dir, ok = breakout(e.det, c)
	tally(dir, ok, model.CondBreakout)

	var direction model.Direction
	var conditions []string
	switch {
	case len(buy) >= e.cfg.MinConfirmations && len(buy) > len(sell):
		direction, conditions = model.DirectionBuy, buy
	case len(sell) >= e.cfg.MinConfirmations && len(sell) > len(buy):
		direction, conditions = model.DirectionSell, sell
	case len(buy) >= e.cfg.MinConfirmations || len(sell) >= e.cfg.MinConfirmations:
		// Enough matches but no clear majority.
		e.stats.FilteredMixed++
		e.notifyFiltered("mixed")
		return model.Signal{}, false
	default:
		return model.Signal{}, false
	}

	sig, ok := e.buildSignal(c, direction, conditions)
	if !ok {
		return model.Signal{}, false
	}

	e.lastSignal = c.OpenTime
	e.stats.Emitted++
	log.Printf("[signal] %s %s tf=%d entry=%.5f sl=%.5f tp=%.5f rr=%.2f conds=%v",
		sig.Direction, sig.Symbol, sig.TF, sig.EntryPrice, sig.StopLoss, sig.TakeProfit, sig.RiskReward, sig.Conditions)
	return sig, true
}

// buildSignal derives the structural stop, validates the risk and
// assembles the immutable signal.
func (e *Evaluator) buildSignal(c model.Candle, dir model.Direction, conditions []string) (model.Signal, bool) {
	entry := c.Close

	stop, ok := e.structuralStop(dir, entry)
	if !ok {
		e.stats.FilteredRisk++
		e.notifyFiltered("risk")
		return model.Signal{}, false
	}

	dist := entry - stop
	if dist < 0 {
		dist = -dist
	}
	if entry == 0 || dist/entry < e.cfg.MinStopPct {
		e.stats.FilteredRisk++
		e.notifyFiltered("risk")
		return model.Signal{}, false
	}

	sl, tp, err := risk.ComputeTargets(dir, entry, stop, e.cfg.RRRatio)
	if err != nil {
		e.stats.FilteredRisk++
		e.notifyFiltered("risk")
		return model.Signal{}, false
	}
	if !e.cfg.Band.Validate(e.cfg.RRRatio) {
		e.stats.FilteredRisk++
		e.notifyFiltered("risk")
		return model.Signal{}, false
	}

	return model.Signal{
		ID:               uuid.NewString(),
		Symbol:           e.symbol,
		TF:               e.tf,
		Direction:        dir,
		EntryPrice:       entry,
		StopLoss:         sl,
		TakeProfit:       tp,
		RiskReward:       e.cfg.RRRatio,
		Confidence:       len(conditions),
		Conditions:       conditions,
		CandleTS:         c.OpenTime,
		CreatedAt:        time.Now().UTC(),
		EstimatedMinutes: e.estimateMinutes(tp, entry),
	}, true
}

// structuralStop picks the invalidating structural reference in the
// signal's direction: the nearest level, falling back to the last
// confirmed swing. No valid reference means no signal — stops are never
// a fixed percentage.
func (e *Evaluator) structuralStop(dir model.Direction, entry float64) (float64, bool) {
	switch dir {
	case model.DirectionBuy:
		if s, ok := e.det.NearestSupport(entry); ok {
			return s, true
		}
		if s, ok := e.det.LastSwingLow(); ok && s < entry {
			return s, true
		}
	case model.DirectionSell:
		if r, ok := e.det.NearestResistance(entry); ok {
			return r, true
		}
		if r, ok := e.det.LastSwingHigh(); ok && r > entry {
			return r, true
		}
	}
	return 0, false
}

// estimateMinutes guesses the time to target from recent volatility.
// Informative only; it never gates emission.
func (e *Evaluator) estimateMinutes(tp, entry float64) float64 {
	avg := e.det.AvgRange(e.cfg.AvgRangePeriod)
	if avg <= 0 {
		return 0
	}
	dist := tp - entry
	if dist < 0 {
		dist = -dist
	}
	candles := dist / avg
	return candles * float64(e.tf) / 60.0
}

// Stats returns a copy of the evaluator's outcome counters.
func (e *Evaluator) Stats() Stats { return e.stats }

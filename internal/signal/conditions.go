package signal

import "tradepulse/internal/model"

// Condition checks are pure functions over two consecutive indicator
// snapshots or the confirming candle plus market structure. Each returns
// at most one direction; the evaluator tallies them.

// emaCross fires on the exact candle where the fast/slow difference
// changes sign. A zero difference on either side is not a cross.
func emaCross(prev, curr model.IndicatorSnapshot) (model.Direction, bool) {
	prevDiff := prev.EMAFast - prev.EMASlow
	currDiff := curr.EMAFast - curr.EMASlow

	switch {
	case prevDiff < 0 && currDiff > 0:
		return model.DirectionBuy, true
	case prevDiff > 0 && currDiff < 0:
		return model.DirectionSell, true
	}
	return "", false
}

// rsiReversal requires the RSI to be in an extreme zone AND turning back
// toward neutral. An extreme that keeps extending is momentum, not a
// reversal, and must not fire.
func rsiReversal(prev, curr model.IndicatorSnapshot, oversold, overbought float64) (model.Direction, bool) {
	if curr.RSI < oversold && curr.RSI > prev.RSI {
		return model.DirectionBuy, true
	}
	if curr.RSI > overbought && curr.RSI < prev.RSI {
		return model.DirectionSell, true
	}
	return "", false
}

// structureView is the slice of the structure detector the evaluator
// needs. Satisfied by *structure.Detector.
type structureView interface {
	BounceOffSupport(c model.Candle) bool
	RejectionAtResistance(c model.Candle) bool
	BreakoutAbove(c model.Candle) bool
	BreakoutBelow(c model.Candle) bool
	Consolidating() bool
	NearestSupport(price float64) (float64, bool)
	NearestResistance(price float64) (float64, bool)
	LastSwingLow() (float64, bool)
	LastSwingHigh() (float64, bool)
	AvgRange(n int) float64
}

// srBounce checks for a confirmation candle at a level: a bounce off
// support (BUY) or a rejection at resistance (SELL). The candle shape
// requirements make the two mutually exclusive.
func srBounce(det structureView, c model.Candle) (model.Direction, bool) {
	if det.BounceOffSupport(c) {
		return model.DirectionBuy, true
	}
	if det.RejectionAtResistance(c) {
		return model.DirectionSell, true
	}
	return "", false
}

// breakout checks for a strong-bodied close through a level.
func breakout(det structureView, c model.Candle) (model.Direction, bool) {
	if det.BreakoutAbove(c) {
		return model.DirectionBuy, true
	}
	if det.BreakoutBelow(c) {
		return model.DirectionSell, true
	}
	return "", false
}

// Package risk turns a structural stop into concrete trade targets and
// validates that the resulting risk/reward is worth taking.
package risk

import (
	"errors"
	"fmt"

	"tradepulse/internal/model"
)

var (
	// ErrZeroRisk rejects a stop at the entry price itself.
	ErrZeroRisk = errors.New("risk: stop distance is zero")
	// ErrStopWrongSide rejects a stop on the profit side of the entry.
	ErrStopWrongSide = errors.New("risk: stop on wrong side of entry")
)

// Band is the acceptable risk/reward range, inclusive.
type Band struct {
	Min float64
	Max float64
}

// Validate reports whether rr falls inside the band.
func (b Band) Validate(rr float64) bool {
	return rr >= b.Min && rr <= b.Max
}

func (b Band) String() string {
	return fmt.Sprintf("[%.1f, %.1f]", b.Min, b.Max)
}

// ComputeTargets derives stop-loss and take-profit from a structural
// stop. The stop is taken as-is; the take-profit sits rr times the stop
// distance on the other side of the entry.
func ComputeTargets(dir model.Direction, entry, technicalStop, rr float64) (stopLoss, takeProfit float64, err error) {
	if technicalStop == entry {
		return 0, 0, ErrZeroRisk
	}

	switch dir {
	case model.DirectionBuy:
		if technicalStop > entry {
			return 0, 0, ErrStopWrongSide
		}
		dist := entry - technicalStop
		return technicalStop, entry + dist*rr, nil
	case model.DirectionSell:
		if technicalStop < entry {
			return 0, 0, ErrStopWrongSide
		}
		dist := technicalStop - entry
		return technicalStop, entry - dist*rr, nil
	default:
		return 0, 0, fmt.Errorf("risk: unknown direction %q", dir)
	}
}

package indicator

// EMA calculates an Exponential Moving Average.
// O(1) per update — no window storage needed after the seed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// Update feeds a close price and recalculates.
// The first `period` closes accumulate into an SMA seed; afterwards the
// standard recurrence EMA = price*k + prev*(1-k) applies.
func (e *EMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = price*e.multiplier + e.current*(1-e.multiplier)
}

// Value returns the current EMA. Returns 0 until Ready.
func (e *EMA) Value() float64 { return e.current }

// Ready reports whether the seed has been accumulated.
func (e *EMA) Ready() bool { return e.count >= e.period }

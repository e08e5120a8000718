package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// Update is O(1) per close — no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update feeds a close price and recalculates.
func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First close — no delta yet.
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build the initial averages.
		r.avgGain += gain
		r.avgLoss += loss
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = computeRSI(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avg = (prevAvg*(period-1) + x) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = computeRSI(r.avgGain, r.avgLoss)
}

// Value returns the current RSI in [0, 100]. Returns 0 until Ready.
func (r *RSI) Value() float64 { return r.current }

// Ready reports whether enough closes have been seen.
func (r *RSI) Ready() bool { return r.count > r.period }

func computeRSI(avgGain, avgLoss float64) float64 {
	// Edge cases: only losses → 0, only gains → 100, no movement → neutral.
	if avgGain == 0 && avgLoss == 0 {
		return 50.0
	}
	if avgLoss == 0 {
		return 100.0
	}
	if avgGain == 0 {
		return 0.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

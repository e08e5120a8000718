// Package structure detects market structure from closed candles: swing
// highs/lows, clustered support/resistance levels, breakouts and
// consolidation. One Detector per (symbol, timeframe), driven strictly
// by closed candles so nothing it reports can repaint.
package structure

import (
	"math"
	"sort"

	"tradepulse/internal/model"
)

// Config tunes structure detection. Zero values are replaced by
// DefaultConfig equivalents in New.
type Config struct {
	// Window is how many closed candles are retained for swing and
	// range calculations.
	Window int
	// Lookback is the number of candles on each side a swing pivot must
	// dominate. A pivot is only confirmed Lookback candles after it
	// closes.
	Lookback int
	// TolerancePct is the proximity band around a level, as a fraction
	// of the level price.
	TolerancePct float64
	// MaxLevels caps stored levels per kind; the weakest is evicted.
	MaxLevels int
	// BreakoutMult is how many times larger than the average true range
	// a candle body must be to qualify as a breakout.
	BreakoutMult float64
	// ATRPeriod is the averaging window for true range.
	ATRPeriod int
	// ConsolidationCandles and ConsolidationMult define the flat-market
	// filter: the total range of the last ConsolidationCandles candles
	// must reach avg candle range × ConsolidationMult, else the market
	// is considered consolidating.
	ConsolidationCandles int
	ConsolidationMult    float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:               100,
		Lookback:             2,
		TolerancePct:         0.0015,
		MaxLevels:            10,
		BreakoutMult:         1.2,
		ATRPeriod:            10,
		ConsolidationCandles: 10,
		ConsolidationMult:    2.0,
	}
}

// Detector maintains swing points and support/resistance levels for one
// symbol and timeframe. Not safe for concurrent use; each symbol worker
// owns its detectors.
type Detector struct {
	symbol string
	tf     int
	cfg    Config

	window []model.Candle

	levels []model.SRLevel

	lastSwingHigh float64
	lastSwingLow  float64
	hasSwingHigh  bool
	hasSwingLow   bool

	// Levels removed by the latest candle's decisive close. testLevels
	// drops a broken level before the breakout checks run, so the price
	// is kept aside until the next candle replaces it.
	brokenResistance    float64
	brokenSupport       float64
	hasBrokenResistance bool
	hasBrokenSupport    bool
}

// New creates a detector for one symbol and timeframe.
func New(symbol string, tf int, cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.TolerancePct <= 0 {
		cfg.TolerancePct = def.TolerancePct
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = def.MaxLevels
	}
	if cfg.BreakoutMult <= 0 {
		cfg.BreakoutMult = def.BreakoutMult
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.ConsolidationCandles <= 0 {
		cfg.ConsolidationCandles = def.ConsolidationCandles
	}
	if cfg.ConsolidationMult <= 0 {
		cfg.ConsolidationMult = def.ConsolidationMult
	}
	return &Detector{
		symbol: symbol,
		tf:     tf,
		cfg:    cfg,
		window: make([]model.Candle, 0, cfg.Window),
	}
}

// OnCandle consumes one closed candle: appends it to the window,
// confirms any pivot that the new candle completes, tests existing
// levels against the candle and invalidates broken ones. Forming
// candles are ignored.
func (d *Detector) OnCandle(c model.Candle) {
	if !c.Closed {
		return
	}

	d.window = append(d.window, c)
	if len(d.window) > d.cfg.Window {
		d.window = d.window[1:]
	}

	d.confirmPivot()
	d.testLevels(c)
}

// confirmPivot checks whether the candle Lookback positions back is a
// swing high or low. A pivot needs Lookback candles on each side, so it
// is confirmed exactly Lookback closes after its own.
func (d *Detector) confirmPivot() {
	n := d.cfg.Lookback
	if len(d.window) < 2*n+1 {
		return
	}

	i := len(d.window) - 1 - n
	pivot := d.window[i]

	high := true
	low := true
	for j := i - n; j <= i+n; j++ {
		if j == i {
			continue
		}
		if d.window[j].High >= pivot.High {
			high = false
		}
		if d.window[j].Low <= pivot.Low {
			low = false
		}
	}

	if high {
		d.lastSwingHigh = pivot.High
		d.hasSwingHigh = true
		d.addLevel(pivot.High, model.LevelResistance, pivot)
	}
	if low {
		d.lastSwingLow = pivot.Low
		d.hasSwingLow = true
		d.addLevel(pivot.Low, model.LevelSupport, pivot)
	}
}

// addLevel merges a swing price into an existing level of the same kind
// within the tolerance band, or creates a fresh level. Exceeding
// MaxLevels evicts the weakest level of that kind.
func (d *Detector) addLevel(price float64, kind model.LevelKind, pivot model.Candle) {
	ts := pivot.OpenTime
	for i := range d.levels {
		lvl := &d.levels[i]
		if lvl.Kind != kind {
			continue
		}
		if math.Abs(price-lvl.Price) <= lvl.Price*d.cfg.TolerancePct {
			lvl.TestCount++
			lvl.QualityScore++
			lvl.LastTestedAt = ts
			return
		}
	}

	d.levels = append(d.levels, model.SRLevel{
		Symbol:       d.symbol,
		Price:        price,
		Kind:         kind,
		QualityScore: 1,
		FirstSeenAt:  ts,
		LastTestedAt: ts,
		TestCount:    1,
	})
	d.evict(kind)
}

func (d *Detector) evict(kind model.LevelKind) {
	count := 0
	for _, lvl := range d.levels {
		if lvl.Kind == kind {
			count++
		}
	}
	if count <= d.cfg.MaxLevels {
		return
	}

	weakest := -1
	for i, lvl := range d.levels {
		if lvl.Kind != kind {
			continue
		}
		if weakest == -1 {
			weakest = i
			continue
		}
		w := d.levels[weakest]
		if lvl.QualityScore < w.QualityScore ||
			(lvl.QualityScore == w.QualityScore && lvl.LastTestedAt.Before(w.LastTestedAt)) {
			weakest = i
		}
	}
	if weakest >= 0 {
		d.levels = append(d.levels[:weakest], d.levels[weakest+1:]...)
	}
}

// testLevels strengthens levels the candle approached and respected,
// and drops levels the candle closed decisively beyond.
func (d *Detector) testLevels(c model.Candle) {
	d.hasBrokenResistance = false
	d.hasBrokenSupport = false

	kept := d.levels[:0]
	for _, lvl := range d.levels {
		tol := lvl.Price * d.cfg.TolerancePct

		switch lvl.Kind {
		case model.LevelSupport:
			if c.Close < lvl.Price-tol {
				// Decisive close below support: broken. Keep the
				// highest broken support, the one price fell through
				// first.
				if !d.hasBrokenSupport || lvl.Price > d.brokenSupport {
					d.brokenSupport = lvl.Price
					d.hasBrokenSupport = true
				}
				continue
			}
			if c.Low <= lvl.Price+tol && c.Close > lvl.Price && c.Bullish() {
				lvl.TestCount++
				lvl.QualityScore++
				lvl.LastTestedAt = c.OpenTime
			}
		case model.LevelResistance:
			if c.Close > lvl.Price+tol {
				if !d.hasBrokenResistance || lvl.Price < d.brokenResistance {
					d.brokenResistance = lvl.Price
					d.hasBrokenResistance = true
				}
				continue
			}
			if c.High >= lvl.Price-tol && c.Close < lvl.Price && c.Bearish() {
				lvl.TestCount++
				lvl.QualityScore++
				lvl.LastTestedAt = c.OpenTime
			}
		}
		kept = append(kept, lvl)
	}
	d.levels = kept
}

// NearestSupport returns the strongest candidate support strictly below
// price: the closest level first, falling back to none.
func (d *Detector) NearestSupport(price float64) (float64, bool) {
	best := 0.0
	found := false
	for _, lvl := range d.levels {
		if lvl.Kind != model.LevelSupport || lvl.Price >= price {
			continue
		}
		if !found || lvl.Price > best {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

// NearestResistance returns the closest level strictly above price.
func (d *Detector) NearestResistance(price float64) (float64, bool) {
	best := 0.0
	found := false
	for _, lvl := range d.levels {
		if lvl.Kind != model.LevelResistance || lvl.Price <= price {
			continue
		}
		if !found || lvl.Price < best {
			best = lvl.Price
			found = true
		}
	}
	return best, found
}

// LastSwingLow returns the most recently confirmed swing low.
func (d *Detector) LastSwingLow() (float64, bool) { return d.lastSwingLow, d.hasSwingLow }

// LastSwingHigh returns the most recently confirmed swing high.
func (d *Detector) LastSwingHigh() (float64, bool) { return d.lastSwingHigh, d.hasSwingHigh }

// BounceOffSupport reports whether the candle approached the nearest
// support within tolerance, closed back above it and is bullish — a
// confirmation candle, not a mere touch.
func (d *Detector) BounceOffSupport(c model.Candle) bool {
	support, ok := d.NearestSupport(c.Close)
	if !ok {
		return false
	}
	tol := support * d.cfg.TolerancePct
	return c.Low <= support+tol && c.Close > support && c.Bullish()
}

// RejectionAtResistance is the bearish mirror of BounceOffSupport.
func (d *Detector) RejectionAtResistance(c model.Candle) bool {
	resistance, ok := d.NearestResistance(c.Close)
	if !ok {
		return false
	}
	tol := resistance * d.cfg.TolerancePct
	return c.High >= resistance-tol && c.Close < resistance && c.Bearish()
}

// BreakoutAbove reports a strong close above the nearest resistance:
// the candle body must exceed BreakoutMult × average true range.
func (d *Detector) BreakoutAbove(c model.Candle) bool {
	// A decisive breakout close has already removed the level in
	// testLevels, so prefer the level this candle broke; otherwise fall
	// back to the resistance still standing above the open.
	resistance, ok := d.brokenResistance, d.hasBrokenResistance
	if !ok {
		resistance, ok = d.NearestResistance(c.Open)
	}
	if !ok {
		return false
	}
	atr := d.ATR()
	if atr <= 0 {
		return false
	}
	return c.Close > resistance && c.Body() > atr*d.cfg.BreakoutMult
}

// BreakoutBelow reports a strong close below the nearest support.
func (d *Detector) BreakoutBelow(c model.Candle) bool {
	support, ok := d.brokenSupport, d.hasBrokenSupport
	if !ok {
		support, ok = d.NearestSupport(c.Open)
	}
	if !ok {
		return false
	}
	atr := d.ATR()
	if atr <= 0 {
		return false
	}
	return c.Close < support && c.Body() > atr*d.cfg.BreakoutMult
}

// ATR returns the average true range over the last ATRPeriod candles.
func (d *Detector) ATR() float64 {
	n := d.cfg.ATRPeriod
	if len(d.window) == 0 {
		return 0
	}
	start := len(d.window) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	count := 0
	for i := start; i < len(d.window); i++ {
		c := d.window[i]
		tr := c.Range()
		if i > 0 {
			prev := d.window[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		sum += tr
		count++
	}
	return sum / float64(count)
}

// AvgRange returns the mean high-low range over the last n candles.
func (d *Detector) AvgRange(n int) float64 {
	if len(d.window) == 0 || n <= 0 {
		return 0
	}
	start := len(d.window) - n
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, c := range d.window[start:] {
		sum += c.Range()
	}
	return sum / float64(len(d.window)-start)
}

// Consolidating reports whether the market is stuck in a narrow range:
// the total spread of the last ConsolidationCandles candles is under
// ConsolidationMult × the average single-candle range. With too little
// history it reports true, erring toward not trading.
func (d *Detector) Consolidating() bool {
	n := d.cfg.ConsolidationCandles
	if len(d.window) < n {
		return true
	}

	recent := d.window[len(d.window)-n:]
	hi := recent[0].High
	lo := recent[0].Low
	sum := 0.0
	for _, c := range recent {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
		sum += c.Range()
	}
	avg := sum / float64(n)
	if avg == 0 {
		return true
	}
	return hi-lo < avg*d.cfg.ConsolidationMult
}

// Levels returns an immutable snapshot of current levels, supports
// first, each kind sorted by price.
func (d *Detector) Levels() []model.SRLevel {
	out := make([]model.SRLevel, len(d.levels))
	copy(out, d.levels)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == model.LevelSupport
		}
		return out[i].Price < out[j].Price
	})
	return out
}

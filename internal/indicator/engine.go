package indicator

import (
	"tradepulse/internal/model"
)

// Engine owns the indicator set for one (symbol, timeframe) pair:
// a fast/slow EMA pair and an RSI, all updated incrementally from
// closed candles.
type Engine struct {
	symbol  string
	tf      int
	emaFast *EMA
	emaSlow *EMA
	rsi     *RSI
}

// Config holds indicator periods shared by every engine instance.
type Config struct {
	EMAFastPeriod int
	EMASlowPeriod int
	RSIPeriod     int
}

// DefaultConfig returns the standard 9/21 EMA pair with a 14-period RSI.
func DefaultConfig() Config {
	return Config{EMAFastPeriod: 9, EMASlowPeriod: 21, RSIPeriod: 14}
}

// NewEngine creates an engine for one symbol and timeframe.
func NewEngine(symbol string, tf int, cfg Config) *Engine {
	return &Engine{
		symbol:  symbol,
		tf:      tf,
		emaFast: NewEMA(cfg.EMAFastPeriod),
		emaSlow: NewEMA(cfg.EMASlowPeriod),
		rsi:     NewRSI(cfg.RSIPeriod),
	}
}

// OnCandle consumes a closed candle and returns an indicator snapshot
// once all indicators have warmed up. Forming candles are ignored so
// values never repaint.
func (e *Engine) OnCandle(c model.Candle) (model.IndicatorSnapshot, bool) {
	if !c.Closed {
		return model.IndicatorSnapshot{}, false
	}

	e.emaFast.Update(c.Close)
	e.emaSlow.Update(c.Close)
	e.rsi.Update(c.Close)

	if !e.Ready() {
		return model.IndicatorSnapshot{}, false
	}

	return model.IndicatorSnapshot{
		Symbol:   e.symbol,
		TF:       e.tf,
		CandleTS: c.OpenTime,
		EMAFast:  e.emaFast.Value(),
		EMASlow:  e.emaSlow.Value(),
		RSI:      e.rsi.Value(),
	}, true
}

// Ready reports whether every indicator has enough history to emit.
func (e *Engine) Ready() bool {
	return e.emaFast.Ready() && e.emaSlow.Ready() && e.rsi.Ready()
}

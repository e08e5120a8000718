package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tradepulse/internal/model"
)

// Alerter turns pipeline events into alerts: one per created signal and
// one per closed trade. Other event kinds pass through silently.
type Alerter struct {
	notifiers []Notifier
}

// NewAlerter fans alerts out to the given backends.
func NewAlerter(notifiers ...Notifier) *Alerter {
	return &Alerter{notifiers: notifiers}
}

// Run consumes bus events until ctx is cancelled or events is closed.
func (a *Alerter) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			alert, ok := a.build(ev)
			if !ok {
				continue
			}
			for _, n := range a.notifiers {
				if err := n.Send(ctx, alert); err != nil {
					log.Printf("[notify] send failed: %v", err)
				}
			}
		}
	}
}

func (a *Alerter) build(ev model.Event) (Alert, bool) {
	switch p := ev.Payload.(type) {
	case model.Signal:
		return Alert{
			Level: AlertInfo,
			Title: fmt.Sprintf("Signal %s %s", p.Direction, p.Symbol),
			Message: fmt.Sprintf("entry=%.5f sl=%.5f tp=%.5f rr=%.2f confidence=%d conditions=%v",
				p.EntryPrice, p.StopLoss, p.TakeProfit, p.RiskReward, p.Confidence, p.Conditions),
			Symbol: p.Symbol,
			Event:  string(ev.Kind),
			At:     p.CreatedAt,
			Data: map[string]any{
				"direction":   string(p.Direction),
				"entry":       p.EntryPrice,
				"stop_loss":   p.StopLoss,
				"take_profit": p.TakeProfit,
				"rr":          p.RiskReward,
				"confidence":  p.Confidence,
				"conditions":  strings.Join(p.Conditions, ","),
			},
		}, true
	case model.SimulatedTrade:
		if ev.Kind != model.EventTradeClosed {
			return Alert{}, false
		}
		level := AlertInfo
		if p.Status == model.TradeLoss {
			level = AlertWarning
		}
		return Alert{
			Level: level,
			Title: fmt.Sprintf("Trade %s %s", p.Status, p.Symbol),
			Message: fmt.Sprintf("%s entry=%.5f close=%.5f pnl=%.4f%% rr=%.2f dur=%.0fs",
				p.Direction, p.EntryPrice, p.ClosePrice, p.PnLPercent, p.RRReal, p.DurationSeconds),
			Symbol: p.Symbol,
			Event:  string(ev.Kind),
			At:     p.ClosedAt,
			Data: map[string]any{
				"direction":   string(p.Direction),
				"status":      string(p.Status),
				"entry":       p.EntryPrice,
				"close":       p.ClosePrice,
				"pnl_pct":     p.PnLPercent,
				"rr_realized": p.RRReal,
				"duration_s":  p.DurationSeconds,
			},
		}, true
	}
	return Alert{}, false
}

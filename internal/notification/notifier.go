// Package notification delivers pipeline alerts to external channels:
// webhooks, Telegram, or the process log.
package notification

import (
	"context"
	"log"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one outbound notification. Title and Message are the human
// rendering; Symbol, Event, At and Data carry the structured domain
// payload so machine consumers (webhook receivers) do not have to parse
// the text back apart.
type Alert struct {
	Level   AlertLevel
	Title   string
	Message string

	Symbol string
	Event  string
	At     time.Time
	Data   map[string]any
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log. Always installed so a
// deployment without external channels still records its alerts.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// TelegramNotifier delivers alerts through the Telegram Bot API
// (sendMessage, MarkdownV2). Messages render the domain payload line by
// line under the alert title.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {renderTelegram(alert)},
		"parse_mode": {"MarkdownV2"},
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// renderTelegram builds the MarkdownV2 message: severity marker, bold
// title, then the structured payload as sorted key/value lines.
func renderTelegram(alert Alert) string {
	marker := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		marker = "⚠️"
	case AlertCritical:
		marker = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", marker, escapeMarkdown(alert.Title))
	if alert.Symbol != "" {
		fmt.Fprintf(&b, "\n`%s`", escapeMarkdown(alert.Symbol))
	}

	if len(alert.Data) > 0 {
		keys := make([]string, 0, len(alert.Data))
		for k := range alert.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s",
				escapeMarkdown(k), escapeMarkdown(fmt.Sprint(alert.Data[k])))
		}
	} else if alert.Message != "" {
		fmt.Fprintf(&b, "\n%s", escapeMarkdown(alert.Message))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]",
	"(", "\\(", ")", "\\)", "~", "\\~", "`", "\\`",
	">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}",
	".", "\\.", "!", "\\!",
)

// escapeMarkdown escapes the characters MarkdownV2 reserves.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

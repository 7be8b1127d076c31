package telegram

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"CatalogScanner/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	// Telegram rejects messages longer than this many characters.
	maxMessageRunes = 4096
)

// Notifier sends scrape summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *resty.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty apiBase
// targets the public Bot API.
func NewNotifier(botToken, chatID, apiBase string) *Notifier {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	client := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(5 * time.Second)

	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   client,
	}
}

// PublishDigest posts a plain-text message. Long digests are cut to fit.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":                  n.chatID,
			"text":                     truncate(digest, maxMessageRunes),
			"disable_web_page_preview": "true",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("telegram error: %s", resp.Status())
	}

	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

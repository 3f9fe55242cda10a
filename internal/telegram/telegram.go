package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.telegram.org"

// Client sends MarkdownV2 messages through the Telegram bot API.
type Client struct {
	token    string
	chatID   string
	noNotify bool
	apiBase  string
	http     *http.Client
	logger   zerolog.Logger
}

// NewClient creates a Telegram client. With noNotify set, Send logs and
// drops every message instead of transmitting it.
func NewClient(token, chatID string, noNotify bool, logger zerolog.Logger) *Client {
	return &Client{
		token:    token,
		chatID:   chatID,
		noNotify: noNotify,
		apiBase:  defaultAPIBase,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With().Str("component", "telegram").Logger(),
	}
}

type message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send transmits one pre-formatted MarkdownV2 message.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.token == "" || c.chatID == "" {
		return fmt.Errorf("telegram configuration is incomplete")
	}

	if c.noNotify {
		c.logger.Info().Msg("notification skipped (no-notify)")
		return nil
	}

	payload := message{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("message failed with status: %d", resp.StatusCode)
	}

	c.logger.Info().Msg("notification sent")
	return nil
}

// Telegram MarkdownV2 reserves these characters; each occurrence in dynamic
// content needs a preceding backslash.
var markupEscaper = strings.NewReplacer(
	`_`, `\_`, `*`, `\*`, `[`, `\[`, `]`, `\]`,
	`(`, `\(`, `)`, `\)`, `~`, `\~`, "`", "\\`",
	`>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`,
	`=`, `\=`, `|`, `\|`, `{`, `\{`, `}`, `\}`,
	`.`, `\.`, `!`, `\!`,
)

// Escape backslash-escapes every reserved MarkdownV2 character in s.
func Escape(s string) string {
	return markupEscaper.Replace(s)
}

// SlotsMessage formats the per-location alert. Dynamic content is escaped
// exactly once, here; Send transmits the result as-is.
func SlotsMessage(location string, labels []string) string {
	lines := make([]string, 0, len(labels)+2)
	lines = append(lines, fmt.Sprintf("*Driving Test Slots Found: %s*", Escape(location)))
	for _, label := range labels {
		lines = append(lines, fmt.Sprintf("  • _%s_", Escape(label)))
	}
	lines = append(lines, "", "Book now\\!")
	return strings.Join(lines, "\n")
}

// FailureMessage formats the single diagnostic sent for a failed run.
func FailureMessage(msg, lastURL string) string {
	text := "Driving test watcher failed: " + Escape(msg)
	if lastURL != "" {
		text += "\nLast page: " + Escape(lastURL)
	}
	return text
}

// TestMessage is sent by the notify-test command to verify the channel.
func TestMessage() string {
	return "Driving test watcher: notification test " + Escape("(ignore me)")
}

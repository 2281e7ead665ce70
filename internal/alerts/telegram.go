package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shnfxl/polymarket-whale-tracker/internal/config"
	"github.com/shnfxl/polymarket-whale-tracker/internal/detector"
	"github.com/shnfxl/polymarket-whale-tracker/internal/metrics"
)

// TelegramSender delivers alerts via the Telegram bot sendMessage API
type TelegramSender struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewTelegramSender creates a new Telegram sender
func NewTelegramSender(cfg *config.Config, log *logrus.Logger) *TelegramSender {
	return &TelegramSender{
		botToken:   cfg.TelegramBotToken,
		chatID:     cfg.TelegramChatID,
		apiBase:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts the formatted candidate to the configured chat
func (s *TelegramSender) Send(ctx context.Context, c *detector.Candidate) error {
	body, err := json.Marshal(telegramMessage{
		ChatID: s.chatID,
		Text:   FormatMessage(c),
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := s.apiBase + "/bot" + s.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.RecordAlert("error", "telegram")
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.RecordAlert("error", "telegram")
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	metrics.RecordAlert("success", "telegram")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Package telegram is the responder adapter: it delivers prompts to the
// human operator over the Telegram Bot API and maps their replies back into
// the decision service.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/common/config"
	"github.com/stdhuman/stdhuman/internal/common/logger"
)

// longPollTimeout is the server-side getUpdates wait. The HTTP request
// deadline is set slightly above it.
const longPollTimeout = 20 * time.Second

// Update is a single entry from getUpdates.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message"`
	EditedMessage *Message `json:"edited_message"`
}

// Message is an inbound Telegram message.
type Message struct {
	Text string `json:"text"`
	From *User  `json:"from"`
	Chat Chat   `json:"chat"`
}

// User identifies the sender of a message.
type User struct {
	Username string `json:"username"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Content returns the message carried by the update, edited or not.
func (u *Update) Content() *Message {
	if u.Message != nil {
		return u.Message
	}
	return u.EditedMessage
}

// Client talks to the Telegram Bot API. Outbound sends carry their own
// short timeout, independent of any decision timeout, so a hung transport
// cannot delay the caller's conflict/delivery verdict.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	sendTimeout time.Duration
	logger      *logger.Logger
}

// NewClient creates a Bot API client from configuration.
func NewClient(cfg config.TelegramConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{},
		baseURL:     cfg.APIBaseURL,
		token:       cfg.BotToken,
		sendTimeout: cfg.SendTimeoutDuration(),
		logger:      log.WithComponent("telegram-client"),
	}
}

// SendMessage delivers text to the given chat. It returns an error on any
// transport or API failure; there is no partial-success notion.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	payload := map[string]interface{}{"chat_id": chatID, "text": text}
	body, err := c.post(sendCtx, "sendMessage", payload)
	if err != nil {
		c.logger.Error("Failed to send Telegram message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return err
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &result); err != nil || !result.OK {
		c.logger.Error("Telegram rejected message", zap.Int64("chat_id", chatID))
		return fmt.Errorf("telegram sendMessage not ok")
	}

	c.logger.Debug("Telegram message sent", zap.Int64("chat_id", chatID))
	return nil
}

// GetUpdates long-polls for new updates at the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	pollCtx, cancel := context.WithTimeout(ctx, longPollTimeout+10*time.Second)
	defer cancel()

	payload := map[string]interface{}{"timeout": int(longPollTimeout.Seconds())}
	if offset > 0 {
		payload["offset"] = offset
	}

	body, err := c.post(pollCtx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok")
	}
	return result.Result, nil
}

func (c *Client) post(ctx context.Context, method string, payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram %s returned status %d", method, resp.StatusCode)
	}
	return body, nil
}

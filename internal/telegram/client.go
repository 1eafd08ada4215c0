// Package telegram is a small Bot API client covering the methods the bot
// uses: sending and editing messages with inline keyboards, answering button
// presses and registering the webhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yanbot/internal/message"
)

// DefaultBaseURL is the public Bot API host.
const DefaultBaseURL = "https://api.telegram.org"

// APIError is a Bot API reply with ok=false or a non-2xx status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: http %d: %s", e.Method, e.StatusCode, e.Description)
}

// IsParseError reports whether err is Telegram rejecting MarkdownV2 entities.
func IsParseError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Description), "can't parse entities")
}

// Client calls the Bot API
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
}

// NewClient creates a client. perSecond bounds outbound calls across all chats;
// zero or less disables the limit.
func NewClient(baseURL, token string, perSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SendMessage sends content to a chat and returns the new message id.
// MarkdownV2 content that Telegram cannot parse is resent once as plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content message.Content) (int64, error) {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  content.Text,
		ParseMode:             parseMode(content.Format),
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard(content.Affordances),
	}

	var sent Message
	err := c.call(ctx, "sendMessage", req, &sent)
	if err != nil && req.ParseMode != "" && IsParseError(err) {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("MarkdownV2 rejected, resending as plain text")
		req.ParseMode = ""
		req.Text = unescapeMarkdownV2(content.Text)
		err = c.call(ctx, "sendMessage", req, &sent)
	}
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text and keyboard of a message the bot sent.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, content message.Content) error {
	req := editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        content.Text,
		ParseMode:   parseMode(content.Format),
		ReplyMarkup: keyboard(content.Affordances),
	}
	err := c.call(ctx, "editMessageText", req, nil)
	if err != nil && req.ParseMode != "" && IsParseError(err) {
		req.ParseMode = ""
		req.Text = unescapeMarkdownV2(content.Text)
		err = c.call(ctx, "editMessageText", req, nil)
	}
	return err
}

// AnswerCallbackQuery acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	}, nil)
}

// SetWebhook registers url for updates. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: []string{"message", "callback_query"},
	}, nil)
}

func (c *Client) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram %s: failed to marshal request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redactToken(err, c.token))
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: desc}
	}

	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("telegram %s: failed to decode result: %w", method, err)
		}
	}
	return nil
}

func parseMode(f message.Format) string {
	if f == message.MarkdownV2 {
		return "MarkdownV2"
	}
	return ""
}

func keyboard(affordances []message.Affordance) *inlineKeyboardMarkup {
	if len(affordances) == 0 {
		return nil
	}
	markup := &inlineKeyboardMarkup{}
	for _, a := range affordances {
		markup.InlineKeyboard = append(markup.InlineKeyboard, []inlineKeyboardButton{{
			Text:         a.Label,
			URL:          a.ActionURL,
			CallbackData: a.Choice,
		}})
	}
	return markup
}

// unescapeMarkdownV2 drops escaping backslashes so a plain-text fallback
// does not show them.
func unescapeMarkdownV2(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	escaped := false
	for _, r := range text {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// redactToken keeps the bot token out of logged transport errors, which
// include the request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

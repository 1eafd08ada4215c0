package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/message"
)

type recordedCall struct {
	Path string
	Body map[string]interface{}
}

type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []recordedCall
	handler func(path string, body map[string]interface{}) (int, string)
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Path: r.URL.Path, Body: body})
	f.mu.Unlock()

	status, resp := http.StatusOK, `{"ok":true,"result":{"message_id":11,"chat":{"id":5}}}`
	if f.handler != nil {
		status, resp = f.handler(r.URL.Path, body)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func newTestClient(t *testing.T, api *fakeBotAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "TOKEN", 0)
}

func TestSendMessage_Keyboard(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestClient(t, api)

	id, err := c.SendMessage(context.Background(), 5, message.Content{
		Text:   "*hi*",
		Format: message.MarkdownV2,
		Affordances: []message.Affordance{
			{Label: "Open", ActionURL: "https://example.com"},
			{Label: "Yes", Choice: "confirm"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "/botTOKEN/sendMessage", call.Path)
	assert.Equal(t, "MarkdownV2", call.Body["parse_mode"])
	assert.Equal(t, float64(5), call.Body["chat_id"])

	rows := call.Body["reply_markup"].(map[string]interface{})["inline_keyboard"].([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "https://example.com", first["url"])
	assert.NotContains(t, first, "callback_data")
	second := rows[1].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "confirm", second["callback_data"])
}

func TestSendMessage_PlainHasNoParseMode(t *testing.T) {
	api := &fakeBotAPI{}
	c := newTestClient(t, api)

	_, err := c.SendMessage(context.Background(), 5, message.Text("hello"))
	require.NoError(t, err)
	assert.NotContains(t, api.calls[0].Body, "parse_mode")
	assert.NotContains(t, api.calls[0].Body, "reply_markup")
}

func TestSendMessage_MarkdownFallback(t *testing.T) {
	api := &fakeBotAPI{handler: func(path string, body map[string]interface{}) (int, string) {
		if body["parse_mode"] == "MarkdownV2" {
			return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: character '!' is reserved"}`
		}
		return http.StatusOK, `{"ok":true,"result":{"message_id":12,"chat":{"id":5}}}`
	}}
	c := newTestClient(t, api)

	id, err := c.SendMessage(context.Background(), 5, message.Content{Text: `Hello\! 1\.5`, Format: message.MarkdownV2})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	require.Len(t, api.calls, 2)
	assert.NotContains(t, api.calls[1].Body, "parse_mode")
	assert.Equal(t, "Hello! 1.5", api.calls[1].Body["text"])
}

func TestSendMessage_OtherErrorsNotRetried(t *testing.T) {
	api := &fakeBotAPI{handler: func(string, map[string]interface{}) (int, string) {
		return http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	}}
	c := newTestClient(t, api)

	_, err := c.SendMessage(context.Background(), 5, message.Content{Text: "x", Format: message.MarkdownV2})
	require.Error(t, err)
	assert.Len(t, api.calls, 1)
	assert.False(t, IsParseError(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.True(t, strings.Contains(apiErr.Description, "blocked"))
}

func TestSetWebhook(t *testing.T) {
	api := &fakeBotAPI{handler: func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"ok":true,"result":true}`
	}}
	c := newTestClient(t, api)

	require.NoError(t, c.SetWebhook(context.Background(), "https://yan.example.com/telegram/webhook", "s3cret"))
	assert.Equal(t, "/botTOKEN/setWebhook", api.calls[0].Path)
	assert.Equal(t, "s3cret", api.calls[0].Body["secret_token"])
}

func TestAnswerAndEdit(t *testing.T) {
	api := &fakeBotAPI{handler: func(string, map[string]interface{}) (int, string) {
		return http.StatusOK, `{"ok":true,"result":true}`
	}}
	c := newTestClient(t, api)

	require.NoError(t, c.AnswerCallbackQuery(context.Background(), "cb-1", ""))
	require.NoError(t, c.EditMessageText(context.Background(), 5, 9, message.Text("done")))

	require.Len(t, api.calls, 2)
	assert.Equal(t, "cb-1", api.calls[0].Body["callback_query_id"])
	assert.Equal(t, float64(9), api.calls[1].Body["message_id"])
}

func TestUpdateChatID(t *testing.T) {
	var u Update
	require.NoError(t, json.Unmarshal([]byte(`{"update_id":1,"message":{"message_id":2,"chat":{"id":33},"text":"/start"}}`), &u))
	assert.Equal(t, int64(33), u.ChatID())

	u = Update{CallbackQuery: &CallbackQuery{ID: "q", From: User{ID: 44}}}
	assert.Equal(t, int64(44), u.ChatID())

	assert.Equal(t, int64(0), (&Update{}).ChatID())
}

func TestUnescapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `a_b \ c`, unescapeMarkdownV2(`a\_b \\ c`))
	assert.Equal(t, "plain", unescapeMarkdownV2("plain"))
}

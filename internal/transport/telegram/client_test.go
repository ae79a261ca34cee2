package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askout/backend/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token", server.URL, nil), server
}

func TestClient_GetMe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getMe", r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":{"id":42,"username":"askout_test_bot"}}`))
	})

	info, err := client.GetMe()
	require.NoError(t, err)
	assert.EqualValues(t, 42, info.ID)
	assert.Equal(t, "askout_test_bot", info.Username)
}

func TestClient_SendText(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		assert.Equal(t, "12345", r.Form.Get("chat_id"))
		assert.Equal(t, "hello <b>there</b>", r.Form.Get("text"))
		assert.Equal(t, "HTML", r.Form.Get("parse_mode"))
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	assert.NoError(t, client.SendText(12345, "hello <b>there</b>"))
}

func TestClient_SendTextWithButton(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		var markup inlineKeyboard
		require.NoError(t, json.Unmarshal([]byte(r.Form.Get("reply_markup")), &markup))
		require.Len(t, markup.InlineKeyboard, 1)
		require.Len(t, markup.InlineKeyboard[0], 1)
		assert.Equal(t, "🔗 Share your link", markup.InlineKeyboard[0][0].Text)
		assert.Equal(t, "https://t.me/bot?start=abc", markup.InlineKeyboard[0][0].URL)

		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	err := client.SendTextWithButton(1, "text", "🔗 Share your link", "https://t.me/bot?start=abc")
	assert.NoError(t, err)
}

func TestClient_SendPhoto(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "777", r.FormValue("chat_id"))
		assert.Equal(t, "caption here", r.FormValue("caption"))

		file, _, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()

		w.Write([]byte(`{"ok":true,"result":{"message_id":2}}`))
	})

	assert.NoError(t, client.SendPhoto(777, []byte("png-bytes"), "caption here"))
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := client.SendText(1, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "blocked")
}

func TestClient_GetUpdates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "100", r.Form.Get("offset"))
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":100,"message":{"message_id":1,"from":{"id":5,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"text":"/start abc"}},
			{"update_id":101,"message":{"message_id":2,"from":{"id":6,"first_name":"Bob"},"chat":{"id":6,"type":"private"},"text":"hello"}}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 100, 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.EqualValues(t, 100, updates[0].UpdateID)
	assert.Equal(t, "/start abc", updates[0].Message.Text)
}

func TestEventFromUpdate(t *testing.T) {
	makeUpdate := func(text string) *Update {
		return &Update{
			UpdateID: 1,
			Message: &Message{
				From: &User{ID: 9, FirstName: "Ann"},
				Chat: Chat{ID: 9},
				Text: text,
			},
		}
	}

	t.Run("deep link start", func(t *testing.T) {
		event := EventFromUpdate(makeUpdate("/start anon00042"), "askout_bot")
		require.NotNil(t, event)
		assert.Equal(t, "start", event.Command)
		assert.Equal(t, "anon00042", event.Args)
		assert.Equal(t, "anon00042", event.StartToken())
	})

	t.Run("plain start", func(t *testing.T) {
		event := EventFromUpdate(makeUpdate("/start"), "askout_bot")
		require.NotNil(t, event)
		assert.Equal(t, "start", event.Command)
		assert.Equal(t, "", event.StartToken())
	})

	t.Run("command with bot mention", func(t *testing.T) {
		event := EventFromUpdate(makeUpdate("/stats@askout_bot"), "askout_bot")
		require.NotNil(t, event)
		assert.Equal(t, "stats", event.Command)
	})

	t.Run("command for another bot treated as text", func(t *testing.T) {
		event := EventFromUpdate(makeUpdate("/stats@other_bot"), "askout_bot")
		require.NotNil(t, event)
		assert.Equal(t, "", event.Command)
		assert.Equal(t, "/stats@other_bot", event.Text)
	})

	t.Run("plain text", func(t *testing.T) {
		event := EventFromUpdate(makeUpdate("just a question"), "askout_bot")
		require.NotNil(t, event)
		assert.False(t, event.IsCommand())
		assert.Equal(t, "just a question", event.Text)
		assert.EqualValues(t, 9, event.SenderID)
	})

	t.Run("non-text message skipped", func(t *testing.T) {
		assert.Nil(t, EventFromUpdate(&Update{UpdateID: 1, Message: &Message{Chat: Chat{ID: 1}}}, "askout_bot"))
		assert.Nil(t, EventFromUpdate(&Update{UpdateID: 2}, "askout_bot"))
	})
}

var _ Handler = (*recordingHandler)(nil)

// recordingHandler 记录事件，供轮询测试使用
type recordingHandler struct {
	events chan *domain.InboundEvent
}

func (h *recordingHandler) Dispatch(event *domain.InboundEvent) error {
	h.events <- event
	return nil
}

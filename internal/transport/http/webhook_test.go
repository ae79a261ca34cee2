package httptransport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askout/backend/internal/domain"
	"askout/backend/internal/pool"
)

type recordingHandler struct {
	events chan *domain.InboundEvent
}

func (h *recordingHandler) Dispatch(event *domain.InboundEvent) error {
	h.events <- event
	return nil
}

func newWebhookRouter(t *testing.T) (*gin.Engine, *recordingHandler, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := &recordingHandler{events: make(chan *domain.InboundEvent, 8)}
	dispatcher := pool.NewDispatcher(2, 8, nil)
	dispatcher.Start(context.Background())

	wh := NewWebhookHandler(handler, dispatcher, "askout_test_bot", nil)

	router := gin.New()
	router.POST("/telegram/webhook", wh.Receive)

	return router, handler, dispatcher.Stop
}

func TestWebhookReceive(t *testing.T) {
	router, handler, stop := newWebhookRouter(t)
	defer stop()

	t.Run("文本更新转换为事件并入队", func(t *testing.T) {
		body := `{"update_id":42,"message":{"message_id":1,"from":{"id":100,"first_name":"Ada"},"chat":{"id":100,"type":"private"},"text":"/start abc123"}}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		select {
		case event := <-handler.events:
			assert.Equal(t, int64(42), event.UpdateID)
			assert.Equal(t, int64(100), event.ChatID)
			assert.Equal(t, "start", event.Command)
			assert.Equal(t, "abc123", event.Args)
		case <-time.After(time.Second):
			t.Fatal("event was not dispatched")
		}
	})

	t.Run("非文本更新直接确认", func(t *testing.T) {
		body := `{"update_id":43,"message":{"message_id":2,"chat":{"id":100,"type":"private"}}}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, handler.events)
	})

	t.Run("坏载荷返回400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewBufferString("not json"))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askout/backend/internal/pool"
	"askout/backend/internal/transport/telegram"
)

// WebhookHandler 处理平台以 webhook 方式推送的更新。
//
// 与长轮询共用同一条调度路径：更新转换为领域事件后按会话
// 分片入队，同一会话内保持顺序。
type WebhookHandler struct {
	handler     telegram.Handler
	dispatcher  *pool.Dispatcher
	botUsername string
	log         *zap.Logger
}

// NewWebhookHandler 创建 webhook 处理器实例
func NewWebhookHandler(handler telegram.Handler, dispatcher *pool.Dispatcher, botUsername string, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		handler:     handler,
		dispatcher:  dispatcher,
		botUsername: botUsername,
		log:         log,
	}
}

// Receive 接收一条更新推送。
//
// 平台对非 2xx 响应会重试同一条更新，因此除了载荷完全无法
// 解析的情况，一律返回 200，避免坏更新卡住队列。
func (h *WebhookHandler) Receive(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		BadRequest(c, MsgWebhookInvalidPayload)
		return
	}

	event := telegram.EventFromUpdate(&update, h.botUsername)
	if event == nil {
		c.Status(http.StatusOK)
		return
	}

	if !h.dispatcher.TrySubmit(event.ChatID, func() {
		if err := h.handler.Dispatch(event); err != nil {
			h.log.Error("failed to handle webhook update",
				zap.Int64("update_id", event.UpdateID),
				zap.Error(err),
			)
		}
	}) {
		// 队列满时丢给平台重试
		h.log.Warn("dispatch queue full, rejecting update", zap.Int64("update_id", event.UpdateID))
		c.JSON(http.StatusServiceUnavailable, Response{Code: CodeInternalError, Msg: MsgWebhookQueueFull})
		return
	}

	c.Status(http.StatusOK)
}

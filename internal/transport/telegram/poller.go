package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"askout/backend/internal/domain"
	"askout/backend/internal/pool"
)

// Handler 处理一条入站领域事件
type Handler interface {
	Dispatch(event *domain.InboundEvent) error
}

// Poller 长轮询拉取更新并分发到处理器。
//
// 同一会话的事件经分片调度器顺序处理，保证 /start 与随后的
// 文本不会乱序；不同会话并行。
type Poller struct {
	client      *Client
	handler     Handler
	dispatcher  *pool.Dispatcher
	botUsername string
	pollTimeout int
	log         *zap.Logger

	offset int64
}

// NewPoller 创建长轮询器。pollTimeout 为服务端挂起秒数。
func NewPoller(client *Client, handler Handler, dispatcher *pool.Dispatcher, botUsername string, pollTimeout int, log *zap.Logger) *Poller {
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		client:      client,
		handler:     handler,
		dispatcher:  dispatcher,
		botUsername: botUsername,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// Run 持续拉取更新直到 ctx 取消。
//
// 拉取失败退避重试；offset 确认机制保证更新至少被取到一次。
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("update poller started", zap.Int("timeout", p.pollTimeout))

	for {
		updates, err := p.client.GetUpdates(ctx, p.offset, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info("update poller stopped")
				return nil
			}
			if !errors.Is(err, context.Canceled) {
				p.log.Warn("failed to fetch updates", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				p.log.Info("update poller stopped")
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for i := range updates {
			update := updates[i]
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			p.submit(&update)
		}
	}
}

// submit 将更新转换为领域事件并提交调度
func (p *Poller) submit(update *Update) {
	event := EventFromUpdate(update, p.botUsername)
	if event == nil {
		return
	}

	p.dispatcher.Submit(event.ChatID, func() {
		if err := p.handler.Dispatch(event); err != nil {
			p.log.Error("failed to handle update",
				zap.Int64("update_id", event.UpdateID),
				zap.Int64("chat_id", event.ChatID),
				zap.Error(err),
			)
		}
	})
}

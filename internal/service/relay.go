package service

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"askout/backend/internal/domain"
	"askout/backend/internal/monitoring"
	"askout/backend/internal/storage"
)

// Transport 定义向聊天平台回发消息的最小能力。
//
// 文本均为 HTML 格式；button 参数非空时附带单键内联键盘。
type Transport interface {
	SendText(chatID int64, text string) error
	SendTextWithButton(chatID int64, text, buttonLabel, buttonURL string) error
	SendPhoto(chatID int64, photo []byte, caption string) error
}

// Renderer 将匿名消息渲染为图片卡片。
//
// 返回 (nil, nil) 表示渲染不可用，投递方降级为纯文本。
type Renderer interface {
	Render(text string) ([]byte, error)
}

// 用户可见文案
const (
	msgWelcome = "👋 <b>Welcome to Ask Out!</b>\n\n" +
		"Your anonymous question link:\n<code>%s</code>\n\n" +
		"Anyone can send you anonymous messages via this link.\nShare it anywhere!"
	msgPromptTarget = "✉️ <b>Send your anonymous message to this user.</b>\n\n" +
		"Just type and send your message now."
	msgInvalidLink     = "Invalid or expired link."
	msgTargetGone      = "User not found. Maybe their link expired?"
	msgSent            = "✅ Your anonymous message has been sent anonymously!"
	msgDeliveryFailed  = "⚠️ Could not deliver your message. Please try again later."
	msgUsernameUsage   = "Usage: <b>/setusername yourname</b>\nAllowed: a-z, 0-9, 3-20 chars."
	msgUsernameInvalid = "❌ Invalid username. Use only a-z, 0-9, underscores, 3-20 chars."
	msgUsernameTaken   = "❌ This username is already taken. Try another."
	msgUsernameSame    = "You already have this username."
	msgUsernameSet     = "✅ Your custom username is set to <b>%s</b>!\nYour new link:\n<code>%s</code>"
	msgNotRegistered   = "You are not registered yet. Use /start to get your anonymous link."
	msgStats           = "📊 <b>Your Stats</b>\n\n<b>Messages received:</b> <code>%d</code>"
	msgInbound         = "📩 <b>You received an anonymous message:</b>\n\n%s"

	shareButtonLabel = "🔗 Share your link"
)

// RelayEventSink 接收转发事件的元数据通知（运维实时流用）
type RelayEventSink interface {
	NotifyRelayed(recipientID int64)
	NotifyRelayFailed(reason string)
}

// RelayService 实现机器人的会话状态机与匿名转发流程。
type RelayService struct {
	identities *IdentityService
	sessions   storage.SessionRepository
	transport  Transport
	renderer   Renderer
	events     RelayEventSink
	log        *zap.Logger
}

// NewRelayService 创建转发业务服务。renderer 可以为 nil。
func NewRelayService(
	identities *IdentityService,
	sessions storage.SessionRepository,
	transport Transport,
	renderer Renderer,
	log *zap.Logger,
) *RelayService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayService{
		identities: identities,
		sessions:   sessions,
		transport:  transport,
		renderer:   renderer,
		log:        log,
	}
}

// SetEventSink 设置事件通知接收方（避免与运维层循环依赖）
func (s *RelayService) SetEventSink(sink RelayEventSink) {
	s.events = sink
}

// Dispatch 按命令分发入站事件。
//
// 未知命令与普通文本走同一条匿名消息路径，和平台把命令
// 也作为文本投递的行为一致。
func (s *RelayService) Dispatch(event *domain.InboundEvent) error {
	switch event.Command {
	case "start":
		monitoring.RecordUpdate("start")
		return s.HandleStart(event)
	case "setusername":
		monitoring.RecordUpdate("setusername")
		return s.HandleSetUsername(event)
	case "stats":
		monitoring.RecordUpdate("stats")
		return s.HandleStats(event)
	default:
		monitoring.RecordUpdate("text")
		return s.HandleText(event)
	}
}

// HandleStart 处理 /start（带深链参数或普通）。
//
// 带令牌：解析成功则记录待发送目标并提示输入；解析失败仅提示
// 链接失效，不改动会话态。不带令牌：清除会话态并下发本人链接。
func (s *RelayService) HandleStart(event *domain.InboundEvent) error {
	token := event.StartToken()
	if token == "" {
		// 普通 /start 视为放弃未完成的发送流程
		if err := s.sessions.ClearPendingTarget(event.ChatID); err != nil {
			s.log.Warn("failed to clear pending target", zap.Int64("chat_id", event.ChatID), zap.Error(err))
		}
		return s.sendOwnLink(event.ChatID, event.SenderID)
	}

	if _, err := s.identities.ResolveToken(token); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return s.transport.SendText(event.ChatID, msgInvalidLink)
		}
		return err
	}

	if err := s.sessions.SetPendingTarget(event.ChatID, token); err != nil {
		return err
	}
	return s.transport.SendText(event.ChatID, msgPromptTarget)
}

// HandleSetUsername 处理 /setusername。
func (s *RelayService) HandleSetUsername(event *domain.InboundEvent) error {
	raw := event.Args
	if len(strings.Fields(raw)) != 1 {
		return s.transport.SendText(event.ChatID, msgUsernameUsage)
	}

	username := domain.NormalizeUsername(raw)
	if !domain.IsValidUsername(username) {
		return s.transport.SendText(event.ChatID, msgUsernameInvalid)
	}

	// 重设为当前用户名单独提示，和占用冲突区分开
	if current, err := s.identities.Get(event.SenderID); err == nil && current.ShortUsername == username {
		return s.transport.SendText(event.ChatID, msgUsernameSame)
	}

	identity, err := s.identities.SetUsername(event.SenderID, username)
	if err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return s.transport.SendText(event.ChatID, msgUsernameTaken)
		}
		if errors.Is(err, domain.ErrInvalidUsername) {
			return s.transport.SendText(event.ChatID, msgUsernameInvalid)
		}
		return err
	}

	link := s.identities.ShareLink(identity)
	text := fmt.Sprintf(msgUsernameSet, identity.ShortUsername, link)
	return s.transport.SendTextWithButton(event.ChatID, text, shareButtonLabel, link)
}

// HandleStats 处理 /stats。
func (s *RelayService) HandleStats(event *domain.InboundEvent) error {
	identity, err := s.identities.Get(event.SenderID)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return s.transport.SendText(event.ChatID, msgNotRegistered)
		}
		return err
	}
	return s.transport.SendText(event.ChatID, fmt.Sprintf(msgStats, identity.MessagesReceived))
}

// HandleText 处理普通文本。
//
// 会话存在待发送目标时转发匿名消息；否则下发本人链接。目标
// 令牌在发送时重新解析，期间改名或失效按目标消失处理。会话态
// 在取出的瞬间即被消费：无论投递成败都不会残留。
func (s *RelayService) HandleText(event *domain.InboundEvent) error {
	start := time.Now()

	token, err := s.sessions.TakePendingTarget(event.ChatID)
	if err != nil {
		if errors.Is(err, storage.ErrNoPendingTarget) {
			return s.sendOwnLink(event.ChatID, event.SenderID)
		}
		return err
	}

	recipient, err := s.identities.ResolveToken(token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			monitoring.RecordRelayFailure("target_gone")
			if s.events != nil {
				s.events.NotifyRelayFailed("target_gone")
			}
			return s.transport.SendText(event.ChatID, msgTargetGone)
		}
		return err
	}

	if err := s.deliver(recipient.UserID, event.Text); err != nil {
		monitoring.RecordRelayFailure("send_failed")
		if s.events != nil {
			s.events.NotifyRelayFailed("send_failed")
		}
		s.log.Warn("anonymous message delivery failed",
			zap.Int64("recipient_id", recipient.UserID),
			zap.Error(err),
		)
		return s.transport.SendText(event.ChatID, msgDeliveryFailed)
	}

	s.identities.IncrementReceived(recipient.UserID)
	monitoring.RecordRelayed(time.Since(start))
	if s.events != nil {
		s.events.NotifyRelayed(recipient.UserID)
	}
	s.log.Info("anonymous message relayed",
		zap.Int64("recipient_id", recipient.UserID),
		zap.Int("length", len(event.Text)),
	)

	return s.transport.SendText(event.ChatID, msgSent)
}

// deliver 将匿名消息投递给收件人，优先图片卡片，失败降级纯文本。
func (s *RelayService) deliver(recipientID int64, text string) error {
	body := fmt.Sprintf(msgInbound, html.EscapeString(text))

	if s.renderer != nil {
		card, err := s.renderer.Render(text)
		if err != nil {
			monitoring.RecordCardRenderFailure()
			s.log.Warn("card render failed", zap.Error(err))
		} else if card != nil {
			if err := s.transport.SendPhoto(recipientID, card, body); err == nil {
				return nil
			}
			// 图片发送失败继续走纯文本
		}
	}

	return s.transport.SendText(recipientID, body)
}

// sendOwnLink 下发用户本人的匿名链接（附分享按钮）。
func (s *RelayService) sendOwnLink(chatID, userID int64) error {
	identity, err := s.identities.GetOrCreate(userID)
	if err != nil {
		return err
	}

	link := s.identities.ShareLink(identity)
	text := fmt.Sprintf(msgWelcome, link)
	return s.transport.SendTextWithButton(chatID, text, shareButtonLabel, link)
}

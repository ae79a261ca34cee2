package telegram

import (
	"strings"

	"askout/backend/internal/domain"
)

// EventFromUpdate 将一条平台更新转换为领域事件。
//
// 非文本消息（贴纸、图片等）返回 nil，调用方直接跳过。
// 命令格式为 /cmd 或 /cmd@botname，参数为命令后的剩余文本。
func EventFromUpdate(update *Update, botUsername string) *domain.InboundEvent {
	if update.Message == nil || update.Message.Text == "" {
		return nil
	}
	msg := update.Message

	event := &domain.InboundEvent{
		UpdateID: update.UpdateID,
		ChatID:   msg.Chat.ID,
		Text:     msg.Text,
	}
	if msg.From != nil {
		event.SenderID = msg.From.ID
		event.SenderName = msg.From.FirstName
	}

	if strings.HasPrefix(msg.Text, "/") {
		command, args := splitCommand(msg.Text, botUsername)
		event.Command = command
		event.Args = args
	}

	return event
}

// splitCommand 切分命令与参数，剥离群聊里的 @botname 后缀。
//
// 指名其他机器人的命令不归本服务处理，按普通文本对待。
func splitCommand(text, botUsername string) (command, args string) {
	rest := ""
	head := text
	if idx := strings.IndexAny(text, " \t\n"); idx >= 0 {
		head = text[:idx]
		rest = strings.TrimSpace(text[idx+1:])
	}

	head = strings.TrimPrefix(head, "/")
	if at := strings.Index(head, "@"); at >= 0 {
		mention := head[at+1:]
		if botUsername != "" && !strings.EqualFold(mention, botUsername) {
			return "", ""
		}
		head = head[:at]
	}
	if head == "" {
		return "", ""
	}

	return strings.ToLower(head), rest
}

package domain

import "time"

// ConversationState 会话态：记录发送者当前待发送的匿名消息目标
//
// 按聊天会话独占，不落库。target 被一条文本消息消费后立即清除，
// 或在发送者重新发起普通 /start 时清除。
type ConversationState struct {
	ChatID      int64     `json:"chatId"`
	TargetToken string    `json:"targetToken"` // 待发送目标的公开令牌
	SetAt       time.Time `json:"setAt"`
}

// Expired 判断会话态是否超出给定的存活时间
func (s *ConversationState) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.After(s.SetAt.Add(ttl))
}

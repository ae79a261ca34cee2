package telegram

import "encoding/json"

// apiResponse Bot API 的统一响应包装
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// Update 一条入站更新
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message 一条聊天消息
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User 平台用户
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat 聊天会话
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// BotInfo 机器人自身信息（getMe）
type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// inlineKeyboard 内联键盘标记
type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// inlineButton 内联键盘按键
type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

package domain

// InboundEvent 是平台传输层投递给核心的统一入站事件
//
// 核心只关心这几个字段，不感知平台信封的其余内容。
type InboundEvent struct {
	UpdateID   int64  // 平台更新序号，仅用于日志与位点推进
	ChatID     int64  // 会话标识，会话态按它独占
	SenderID   int64  // 发送者的平台用户 ID
	SenderName string // 发送者昵称，仅用于日志，不随消息转发
	Command    string // 解析出的命令（不含斜杠），普通文本为空
	Args       string // 命令参数原文
	Text       string // 消息文本原文
}

// StartToken 返回 /start 深链携带的令牌，普通 /start 返回空串
func (e *InboundEvent) StartToken() string {
	if e.Command != "start" {
		return ""
	}
	return e.Args
}

// IsCommand 判断事件是否为命令消息
func (e *InboundEvent) IsCommand() bool {
	return e.Command != ""
}

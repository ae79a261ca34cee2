package httptransport

import (
	"askout/backend/internal/service"
	"askout/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Identity 错误
	storage.ErrIdentityNotFound:   "身份记录不存在",
	storage.ErrUsernameTaken:      "用户名已被占用",
	storage.ErrAmbiguousToken:     "令牌命中多条身份记录",
	service.ErrTokenNotFound:      "链接令牌不存在或已失效",
	service.ErrNamespaceExhausted: "用户名空间接近饱和，注册失败",

	// 存储错误
	storage.ErrStorageUnavailable: "存储服务暂时不可用",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidJSON    = "JSON格式错误"
	MsgInvalidPage    = "分页参数无效"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgLoginDisabled      = "运维登录未启用"
	MsgTokenExpired       = "登录已过期，请重新登录"
	MsgTokenInvalid       = "无效的访问令牌"

	// 身份相关
	MsgIdentityNotFound   = "身份记录不存在"
	MsgIdentityListFailed = "获取身份列表失败"
	MsgIdentityGetFailed  = "获取身份详情失败"

	// 统计相关
	MsgStatisticsGetFailed = "获取统计数据失败"

	// Webhook 相关
	MsgWebhookInvalidPayload = "更新载荷格式错误"
	MsgWebhookQueueFull      = "事件队列已满"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)

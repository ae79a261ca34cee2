package storage

import (
	"errors"

	"askout/backend/internal/domain"
)

var (
	// ErrIdentityNotFound 身份不存在
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrUsernameTaken 用户名已被其他用户占用
	ErrUsernameTaken = errors.New("username already taken")
	// ErrLinkIDTaken 链接 ID 冲突（并发首次注册时可能出现，调用方应重试）
	ErrLinkIDTaken = errors.New("link id already taken")
	// ErrAmbiguousToken 令牌同时命中多条身份记录，属于数据完整性故障
	ErrAmbiguousToken = errors.New("token matches multiple identities")
	// ErrStorageUnavailable 底层存储不可达（瞬态，调用方可退避重试）
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNoPendingTarget 会话没有待发送目标
	ErrNoPendingTarget = errors.New("no pending target for session")
)

// IdentityRepository 定义身份记录的数据存取操作。
//
// 所有写操作都必须是单行原子操作（插入 / 条件更新 / 自增），
// 不允许读-改-写对，以避免并发丢失更新。
type IdentityRepository interface {
	// CreateIdentity 插入新身份。用户名或链接 ID 已存在时分别返回
	// ErrUsernameTaken / ErrLinkIDTaken，由调用方决定重试策略。
	CreateIdentity(identity *domain.Identity) error

	// GetIdentity 按平台用户 ID 查询身份
	GetIdentity(userID int64) (*domain.Identity, error)

	// FindIdentityByToken 按公开令牌查询身份（用户名或链接 ID 均可命中）。
	// 同一令牌命中两条不同记录时返回 ErrAmbiguousToken。
	FindIdentityByToken(token string) (*domain.Identity, error)

	// UpdateUsername 更新指定用户的用户名。新用户名被他人占用时
	// 返回 ErrUsernameTaken；用户不存在时返回 ErrIdentityNotFound。
	UpdateUsername(userID int64, username string) error

	// IncrementReceived 将 messages_received 原子加一。
	// 返回 false 表示身份已不存在（带外删除），不视为错误。
	IncrementReceived(userID int64) (bool, error)

	// CountIdentities 返回身份总数（运维统计用）
	CountIdentities() (int64, error)

	// ListIdentities 分页列出身份（运维接口用）
	ListIdentities(page, pageSize int) ([]domain.Identity, int64, error)
}

// SessionRepository 定义会话态（待发送目标）的存取操作。
//
// 会话态是易失数据，按聊天会话独占，带自然过期。
type SessionRepository interface {
	// SetPendingTarget 记录会话的待发送目标令牌
	SetPendingTarget(chatID int64, token string) error

	// TakePendingTarget 原子地取出并清除会话的待发送目标。
	// 两条近乎同时到达的文本只有一条能取到目标，另一条拿到
	// ErrNoPendingTarget，从而避免同一会话的重复投递。
	TakePendingTarget(chatID int64) (string, error)

	// ClearPendingTarget 无条件清除会话态（普通 /start 时调用）
	ClearPendingTarget(chatID int64) error

	// CountPendingTargets 返回当前存在待发送目标的会话数（监控用）
	CountPendingTargets() (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	IdentityRepository
	SessionRepository

	// 工具方法
	Close() error
	Health() error
}

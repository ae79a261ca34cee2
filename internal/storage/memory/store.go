package memory

import (
	"sync"
	"time"

	"askout/backend/internal/domain"
	"askout/backend/internal/storage"
)

// Store 使用内存保存身份与会话态数据，主要用于开发验证与测试。
type Store struct {
	mu         sync.RWMutex
	identities map[int64]*domain.Identity // userID -> identity
	byUsername map[string]int64           // short_username -> userID
	byLinkID   map[string]int64           // link_id -> userID

	// 会话态存储
	sessions       map[int64]*domain.ConversationState // chatID -> state
	sessionTTL     time.Duration
	sessionCleanup time.Time // 下次清理过期会话态的时间
}

// NewStore 创建一个内存存储实例。
func NewStore(sessionTTL time.Duration) *Store {
	return &Store{
		identities:     make(map[int64]*domain.Identity),
		byUsername:     make(map[string]int64),
		byLinkID:       make(map[string]int64),
		sessions:       make(map[int64]*domain.ConversationState),
		sessionTTL:     sessionTTL,
		sessionCleanup: time.Now().Add(5 * time.Minute),
	}
}

// ========== Identity Repository ==========

// CreateIdentity 插入新身份记录。
func (s *Store) CreateIdentity(identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.UserID]; exists {
		// 主键冲突按用户名占用处理，调用方会重新读取
		return storage.ErrUsernameTaken
	}
	if _, exists := s.byUsername[identity.ShortUsername]; exists {
		return storage.ErrUsernameTaken
	}
	if _, exists := s.byLinkID[identity.LinkID]; exists {
		return storage.ErrLinkIDTaken
	}

	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	if identity.UpdatedAt.IsZero() {
		identity.UpdatedAt = now
	}

	clone := *identity
	s.identities[identity.UserID] = &clone
	s.byUsername[identity.ShortUsername] = identity.UserID
	s.byLinkID[identity.LinkID] = identity.UserID

	return nil
}

// GetIdentity 按平台用户 ID 查询身份。
func (s *Store) GetIdentity(userID int64) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[userID]
	if !ok {
		return nil, storage.ErrIdentityNotFound
	}

	clone := *identity
	return &clone, nil
}

// FindIdentityByToken 按公开令牌查询身份。
//
// 用户名索引与链接 ID 索引都会查询；两个索引命中不同用户时
// 说明写路径的唯一性约束被破坏，返回 ErrAmbiguousToken。
func (s *Store) FindIdentityByToken(token string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName, okName := s.byUsername[token]
	byLink, okLink := s.byLinkID[token]

	switch {
	case okName && okLink && byName != byLink:
		return nil, storage.ErrAmbiguousToken
	case okName:
		clone := *s.identities[byName]
		return &clone, nil
	case okLink:
		clone := *s.identities[byLink]
		return &clone, nil
	default:
		return nil, storage.ErrIdentityNotFound
	}
}

// UpdateUsername 更新用户名并维护索引。
func (s *Store) UpdateUsername(userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[userID]
	if !ok {
		return storage.ErrIdentityNotFound
	}

	if owner, exists := s.byUsername[username]; exists {
		if owner == userID {
			// 重设为自己当前的用户名，等价于空操作
			return nil
		}
		return storage.ErrUsernameTaken
	}

	delete(s.byUsername, identity.ShortUsername)
	identity.ShortUsername = username
	identity.UpdatedAt = time.Now().UTC()
	s.byUsername[username] = userID

	return nil
}

// IncrementReceived 将接收计数原子加一。
func (s *Store) IncrementReceived(userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[userID]
	if !ok {
		return false, nil
	}

	identity.MessagesReceived++
	identity.UpdatedAt = time.Now().UTC()
	return true, nil
}

// CountIdentities 返回身份总数。
func (s *Store) CountIdentities() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.identities)), nil
}

// ListIdentities 分页列出身份快照。
func (s *Store) ListIdentities(page, pageSize int) ([]domain.Identity, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		all = append(all, *identity)
	}
	total := int64(len(all))

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	return all[start:end], total, nil
}

// ========== Session Repository ==========

// SetPendingTarget 记录会话的待发送目标。
func (s *Store) SetPendingTarget(chatID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneSessionsLocked()

	s.sessions[chatID] = &domain.ConversationState{
		ChatID:      chatID,
		TargetToken: token,
		SetAt:       time.Now().UTC(),
	}
	return nil
}

// TakePendingTarget 原子取出并清除会话的待发送目标。
func (s *Store) TakePendingTarget(chatID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[chatID]
	if !ok {
		return "", storage.ErrNoPendingTarget
	}

	delete(s.sessions, chatID)

	if state.Expired(s.sessionTTL, time.Now()) {
		return "", storage.ErrNoPendingTarget
	}
	return state.TargetToken, nil
}

// ClearPendingTarget 无条件清除会话态。
func (s *Store) ClearPendingTarget(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, chatID)
	return nil
}

// CountPendingTargets 返回当前存在待发送目标的会话数。
func (s *Store) CountPendingTargets() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneSessionsLocked()
	return int64(len(s.sessions)), nil
}

// pruneSessionsLocked 周期性清理过期会话态（每 5 分钟一次）。
func (s *Store) pruneSessionsLocked() {
	now := time.Now()
	if now.Before(s.sessionCleanup) {
		return
	}
	for chatID, state := range s.sessions {
		if state.Expired(s.sessionTTL, now) {
			delete(s.sessions, chatID)
		}
	}
	s.sessionCleanup = now.Add(5 * time.Minute)
}

// ========== 工具方法 ==========

// Close 关闭存储连接。
func (s *Store) Close() error {
	// 内存存储不需要关闭连接
	return nil
}

// Health 健康检查。
func (s *Store) Health() error {
	// 内存存储总是健康的
	return nil
}

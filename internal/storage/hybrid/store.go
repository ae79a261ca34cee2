package hybrid

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"askout/backend/internal/config"
	"askout/backend/internal/domain"
	"askout/backend/internal/storage"
	"askout/backend/internal/storage/redis"
	sqlstore "askout/backend/internal/storage/sql"
)

// Store 混合存储实现：SQL 持久化身份记录，Redis 承载会话态
//
// 身份的令牌解析始终打到 SQL（改名后缓存旧值会指向错误的收件人），
// 仅按用户 ID 的读取走短 TTL 缓存。
type Store struct {
	sql   *sqlstore.Store
	redis *redis.Client
	cache *identityCache
	sess  *redis.Sessions
}

// NewStore 创建混合存储实例
func NewStore(dbCfg *config.DatabaseConfig, redisCfg *config.RedisConfig, sessionTTL time.Duration, log *zap.Logger) (*Store, error) {
	sqlStore, err := sqlstore.NewStore(
		dbCfg.Type,
		dbCfg.DSN,
		dbCfg.MaxOpenConns,
		dbCfg.MaxIdleConns,
		dbCfg.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient, err := redis.New(redisCfg, log)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return &Store{
		sql:   sqlStore,
		redis: redisClient,
		cache: newIdentityCache(redisClient, 5*time.Minute),
		sess:  redis.NewSessions(redisClient, sessionTTL),
	}, nil
}

// RedisClient 返回底层 Redis 客户端（健康检查用）
func (s *Store) RedisClient() *redis.Client {
	return s.redis
}

// ========== Identity Repository ==========

// CreateIdentity 插入新身份记录
func (s *Store) CreateIdentity(identity *domain.Identity) error {
	if err := s.sql.CreateIdentity(identity); err != nil {
		return err
	}

	// 缓存新身份（失败仅影响命中率）
	s.cache.put(identity)
	return nil
}

// GetIdentity 根据平台用户 ID 获取身份
func (s *Store) GetIdentity(userID int64) (*domain.Identity, error) {
	// 先尝试从 Redis 获取
	if identity, ok := s.cache.get(userID); ok {
		return identity, nil
	}

	identity, err := s.sql.GetIdentity(userID)
	if err != nil {
		return nil, err
	}

	s.cache.put(identity)
	return identity, nil
}

// FindIdentityByToken 根据公开令牌获取身份（不走缓存）
func (s *Store) FindIdentityByToken(token string) (*domain.Identity, error) {
	return s.sql.FindIdentityByToken(token)
}

// UpdateUsername 更新用户名并失效缓存
func (s *Store) UpdateUsername(userID int64, username string) error {
	if err := s.sql.UpdateUsername(userID, username); err != nil {
		return err
	}

	s.cache.invalidate(userID)
	return nil
}

// IncrementReceived 将接收计数原子加一并失效缓存
func (s *Store) IncrementReceived(userID int64) (bool, error) {
	found, err := s.sql.IncrementReceived(userID)
	if err != nil {
		return false, err
	}

	s.cache.invalidate(userID)
	return found, nil
}

// CountIdentities 返回身份总数
func (s *Store) CountIdentities() (int64, error) {
	return s.sql.CountIdentities()
}

// ListIdentities 分页列出身份（列表查询不缓存）
func (s *Store) ListIdentities(page, pageSize int) ([]domain.Identity, int64, error) {
	return s.sql.ListIdentities(page, pageSize)
}

// ========== Session Repository ==========

// SetPendingTarget 记录会话的待发送目标
func (s *Store) SetPendingTarget(chatID int64, token string) error {
	return s.sess.SetPendingTarget(chatID, token)
}

// TakePendingTarget 原子取出并清除会话的待发送目标
func (s *Store) TakePendingTarget(chatID int64) (string, error) {
	return s.sess.TakePendingTarget(chatID)
}

// ClearPendingTarget 无条件清除会话态
func (s *Store) ClearPendingTarget(chatID int64) error {
	return s.sess.ClearPendingTarget(chatID)
}

// CountPendingTargets 返回当前存在待发送目标的会话数
func (s *Store) CountPendingTargets() (int64, error) {
	return s.sess.CountPendingTargets()
}

// ========== 工具方法 ==========

// Close 关闭底层连接
func (s *Store) Close() error {
	redisErr := s.redis.Close()
	sqlErr := s.sql.Close()
	if sqlErr != nil {
		return sqlErr
	}
	return redisErr
}

// Health 检查底层存储健康状态
func (s *Store) Health() error {
	if err := s.sql.Health(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

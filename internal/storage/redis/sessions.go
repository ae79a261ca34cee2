package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"askout/backend/internal/storage"
)

// Sessions Redis 会话态实现
//
// 每个会话一个字符串键 pending:<chatID>，值为目标令牌，依赖
// Redis 的键过期实现会话 TTL。取出操作使用 GETDEL 保证原子性。
type Sessions struct {
	client *goredis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewSessions 创建 Redis 会话态实例
func NewSessions(client *Client, ttl time.Duration) *Sessions {
	return &Sessions{
		client: client.Client(),
		ctx:    context.Background(),
		ttl:    ttl,
	}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("pending:%d", chatID)
}

// SetPendingTarget 记录会话的待发送目标令牌
func (s *Sessions) SetPendingTarget(chatID int64, token string) error {
	if err := s.client.Set(s.ctx, sessionKey(chatID), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return nil
}

// TakePendingTarget 原子取出并清除会话的待发送目标
func (s *Sessions) TakePendingTarget(chatID int64) (string, error) {
	token, err := s.client.GetDel(s.ctx, sessionKey(chatID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", storage.ErrNoPendingTarget
		}
		return "", fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return token, nil
}

// ClearPendingTarget 无条件清除会话态
func (s *Sessions) ClearPendingTarget(chatID int64) error {
	if err := s.client.Del(s.ctx, sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
	}
	return nil
}

// CountPendingTargets 扫描统计当前待发送会话数（监控用，非精确快照）
func (s *Sessions) CountPendingTargets() (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(s.ctx, cursor, "pending:*", 200).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
		}
		total += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"askout/backend/internal/domain"
	"askout/backend/internal/storage/redis"
)

// identityCache 按用户 ID 缓存身份记录（短 TTL）
//
// 缓存只服务 GetIdentity；令牌解析不经过这里。所有缓存错误
// 都静默降级为未命中。
type identityCache struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

func newIdentityCache(client *redis.Client, ttl time.Duration) *identityCache {
	return &identityCache{
		client: client,
		ctx:    context.Background(),
		ttl:    ttl,
	}
}

func identityKey(userID int64) string {
	return fmt.Sprintf("identity:%d", userID)
}

func (c *identityCache) get(userID int64) (*domain.Identity, bool) {
	data, err := c.client.Client().Get(c.ctx, identityKey(userID)).Result()
	if err != nil {
		return nil, false
	}

	var identity domain.Identity
	if err := json.Unmarshal([]byte(data), &identity); err != nil {
		return nil, false
	}
	return &identity, true
}

func (c *identityCache) put(identity *domain.Identity) {
	data, err := json.Marshal(identity)
	if err != nil {
		return
	}
	c.client.Client().Set(c.ctx, identityKey(identity.UserID), data, c.ttl)
}

func (c *identityCache) invalidate(userID int64) {
	c.client.Client().Del(c.ctx, identityKey(userID))
}

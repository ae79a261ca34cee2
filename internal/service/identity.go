package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"askout/backend/internal/domain"
	"askout/backend/internal/monitoring"
	"askout/backend/internal/storage"
)

var (
	// ErrTokenNotFound 令牌无法解析到任何收件人
	ErrTokenNotFound = errors.New("token not found")
	// ErrNamespaceExhausted 生成用户名重试耗尽，用户名空间接近饱和
	ErrNamespaceExhausted = errors.New("username namespace exhausted")
)

// 生成用户名的最大重试次数。达到上限说明 anon00000-anon99999
// 空间已接近饱和，继续盲试没有意义。
const maxAllocateAttempts = 64

// 生成用户名的数字空间大小（5 位十进制）
const usernameSpace = 100000

// linkIDBytes 链接 ID 的随机字节数，URL-safe Base64 后为 11 字符
const linkIDBytes = 8

// IdentityService 封装身份记录的注册、解析与改名操作。
type IdentityService struct {
	repo      storage.IdentityRepository
	linkBase  string
	onCreated func() // 身份注册成功的通知回调（可选）
	log       *zap.Logger
}

// NewIdentityService 创建身份业务服务。
//
// linkBase 是深链前缀（如 https://t.me/askout_bot），完整分享
// 链接为 linkBase?start=<token>。
func NewIdentityService(repo storage.IdentityRepository, linkBase string, log *zap.Logger) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityService{
		repo:     repo,
		linkBase: linkBase,
		log:      log,
	}
}

// SetCreatedNotifier 设置身份注册成功的通知回调（运维实时流用）
func (s *IdentityService) SetCreatedNotifier(fn func()) {
	s.onCreated = fn
}

// GetOrCreate 返回用户的身份记录，首次见到该用户时注册新身份。
//
// 注册是幂等的：已有记录直接返回，不会生成新令牌。生成的
// 用户名或链接 ID 与存量冲突时换新值重试，重试有限次。
func (s *IdentityService) GetOrCreate(userID int64) (*domain.Identity, error) {
	identity, err := s.repo.GetIdentity(userID)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, storage.ErrIdentityNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		username, err := s.generateUsername()
		if err != nil {
			return nil, err
		}
		linkID, err := generateLinkID()
		if err != nil {
			return nil, err
		}

		candidate := &domain.Identity{
			UserID:        userID,
			ShortUsername: username,
			LinkID:        linkID,
		}

		err = s.repo.CreateIdentity(candidate)
		if err == nil {
			monitoring.RecordIdentityCreated()
			if s.onCreated != nil {
				s.onCreated()
			}
			s.log.Info("identity created",
				zap.Int64("user_id", userID),
				zap.String("username", username),
			)
			return candidate, nil
		}

		if errors.Is(err, storage.ErrUsernameTaken) || errors.Is(err, storage.ErrLinkIDTaken) {
			// 同一用户并发注册时另一条写入可能已经赢了
			if existing, getErr := s.repo.GetIdentity(userID); getErr == nil {
				return existing, nil
			}
			monitoring.RecordUsernameCollision()
			continue
		}
		return nil, err
	}

	s.log.Error("username allocation retries exhausted", zap.Int64("user_id", userID))
	return nil, ErrNamespaceExhausted
}

// Get 返回用户已有的身份记录，不存在时不注册。
func (s *IdentityService) Get(userID int64) (*domain.Identity, error) {
	return s.repo.GetIdentity(userID)
}

// ResolveToken 将公开令牌解析为身份记录。
//
// 令牌歧义属于数据完整性故障，记录错误日志后对调用方统一
// 表现为未找到，不向匿名发送方暴露内部状态。
func (s *IdentityService) ResolveToken(token string) (*domain.Identity, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	identity, err := s.repo.FindIdentityByToken(token)
	if err != nil {
		if errors.Is(err, storage.ErrAmbiguousToken) {
			s.log.Error("token resolves to multiple identities", zap.String("token", token))
			return nil, ErrTokenNotFound
		}
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return identity, nil
}

// SetUsername 更新用户自选的用户名。
//
// 输入先归一化再校验；改名成功后旧用户名立即失效，由其组成的
// 历史分享链接不再可达（链接 ID 不受影响）。
func (s *IdentityService) SetUsername(userID int64, raw string) (*domain.Identity, error) {
	username := domain.NormalizeUsername(raw)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	// 确保身份存在（用户可能未发过 /start 直接改名）
	if _, err := s.GetOrCreate(userID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateUsername(userID, username); err != nil {
		return nil, err
	}

	monitoring.RecordUsernameReset()
	s.log.Info("username updated",
		zap.Int64("user_id", userID),
		zap.String("username", username),
	)

	return s.repo.GetIdentity(userID)
}

// IncrementReceived 在消息投递成功后将接收计数加一。
//
// 身份带外消失时仅记录日志，不影响已完成的投递。
func (s *IdentityService) IncrementReceived(userID int64) {
	found, err := s.repo.IncrementReceived(userID)
	if err != nil {
		s.log.Warn("failed to increment received counter",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}
	if !found {
		s.log.Warn("identity vanished before counter update", zap.Int64("user_id", userID))
	}
}

// ShareLink 构造身份的公开分享链接（使用当前用户名作为令牌）。
func (s *IdentityService) ShareLink(identity *domain.Identity) string {
	return fmt.Sprintf("%s?start=%s", s.linkBase, identity.ShortUsername)
}

// generateUsername 生成 anon + 5 位十进制数字形式的用户名。
func (s *IdentityService) generateUsername() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(usernameSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate username: %w", err)
	}
	return fmt.Sprintf("%s%05d", domain.GeneratedUsernamePrefix, n.Int64()), nil
}

// generateLinkID 生成 URL-safe 的随机链接 ID。
func generateLinkID() (string, error) {
	buf := make([]byte, linkIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate link id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

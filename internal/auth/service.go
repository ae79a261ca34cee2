package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"askout/backend/internal/auth/jwt"
	"askout/backend/internal/config"
)

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginDisabled 未配置管理员密码，运维登录关闭
	ErrLoginDisabled = errors.New("admin login disabled")
)

// Service 运维接口的认证服务。
//
// 只有一个管理员账号，账号与密码哈希来自配置；密码校验用
// bcrypt，通过后签发 JWT 令牌对。
type Service struct {
	admin      config.AdminConfig
	jwtManager *jwt.Manager
}

// NewService 创建认证服务
func NewService(admin config.AdminConfig, jwtManager *jwt.Manager) *Service {
	return &Service{
		admin:      admin,
		jwtManager: jwtManager,
	}
}

// Login 校验管理员凭证并签发令牌对
func (s *Service) Login(username, password string) (*jwt.TokenPair, error) {
	if s.admin.PasswordHash == "" {
		return nil, ErrLoginDisabled
	}
	if username != s.admin.Username {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(username, "admin")
}

// Refresh 用刷新令牌换取新的访问令牌
func (s *Service) Refresh(refreshToken string) (string, error) {
	return s.jwtManager.RefreshAccessToken(refreshToken)
}

// AccessExpiry 返回访问令牌的有效期
func (s *Service) AccessExpiry() time.Duration {
	return s.jwtManager.AccessExpiry()
}

// Validate 验证访问令牌
func (s *Service) Validate(token string) (*jwt.Claims, error) {
	return s.jwtManager.ValidateToken(token)
}

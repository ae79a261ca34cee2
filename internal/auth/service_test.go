package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"askout/backend/internal/auth/jwt"
	"askout/backend/internal/config"
)

func newAuthService(t *testing.T, password string) *Service {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	manager := jwt.NewManager("0123456789abcdef0123456789abcdef", "askout", 15*time.Minute, 7*24*time.Hour)
	return NewService(config.AdminConfig{
		Username:     "admin",
		PasswordHash: string(hash),
	}, manager)
}

func TestService_Login(t *testing.T) {
	service := newAuthService(t, "correct-horse")

	t.Run("正确凭证签发令牌对", func(t *testing.T) {
		pair, err := service.Login("admin", "correct-horse")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.EqualValues(t, 15*60, pair.ExpiresIn)

		claims, err := service.Validate(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "admin", claims.Username)
		assert.Equal(t, "admin", claims.Role)
	})

	t.Run("错误密码被拒绝", func(t *testing.T) {
		_, err := service.Login("admin", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("错误用户名被拒绝", func(t *testing.T) {
		_, err := service.Login("root", "correct-horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("未配置密码哈希时登录关闭", func(t *testing.T) {
		manager := jwt.NewManager("0123456789abcdef0123456789abcdef", "askout", time.Minute, time.Hour)
		disabled := NewService(config.AdminConfig{Username: "admin"}, manager)

		_, err := disabled.Login("admin", "anything")
		assert.ErrorIs(t, err, ErrLoginDisabled)
	})
}

func TestService_Refresh(t *testing.T) {
	service := newAuthService(t, "correct-horse")

	pair, err := service.Login("admin", "correct-horse")
	require.NoError(t, err)

	access, err := service.Refresh(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := service.Validate(access)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestService_ValidateRejectsGarbage(t *testing.T) {
	service := newAuthService(t, "pw")

	_, err := service.Validate("not-a-jwt")
	assert.ErrorIs(t, err, jwt.ErrInvalidToken)
}

package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askout/backend/internal/auth"
	jwtpkg "askout/backend/internal/auth/jwt"
)

// AuthHandler 处理运维认证相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service // 认证业务服务
	log         *zap.Logger   // 结构化日志记录器
}

// NewAuthHandler 创建认证处理器实例
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login 处理运维管理员登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	tokens, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			Unauthorized(c, MsgInvalidCredentials)
		case errors.Is(err, auth.ErrLoginDisabled):
			Forbidden(c, MsgLoginDisabled)
		default:
			h.log.Error("failed to login", zap.Error(err))
			InternalError(c, MsgInternalError)
		}
		return
	}

	h.log.Info("admin logged in", zap.String("username", req.Username))

	Success(c, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Refresh 用刷新令牌换取新的访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrExpiredToken):
			Unauthorized(c, MsgTokenExpired)
		default:
			Unauthorized(c, MsgTokenInvalid)
		}
		return
	}

	Success(c, tokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(h.authService.AccessExpiry().Seconds()),
	})
}

// Me 返回当前登录的管理员信息
func (h *AuthHandler) Me(c *gin.Context) {
	Success(c, gin.H{
		"username": c.GetString("username"),
		"role":     c.GetString("role"),
	})
}

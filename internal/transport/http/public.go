package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"askout/backend/internal/service"
)

// PublicHandler 处理无需认证的公开 HTTP 请求
type PublicHandler struct {
	identities *service.IdentityService
}

// NewPublicHandler 创建公开接口处理器实例
func NewPublicHandler(identities *service.IdentityService) *PublicHandler {
	return &PublicHandler{identities: identities}
}

// CheckLink 校验分享链接令牌是否有效。
//
// 只返回有效性，不暴露身份详情；落地页据此决定展示
// 发送入口还是失效提示。
func (h *PublicHandler) CheckLink(c *gin.Context) {
	token := c.Param("token")

	_, err := h.identities.ResolveToken(token)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			Success(c, gin.H{"valid": false})
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{"valid": true})
}

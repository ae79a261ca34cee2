package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askout/backend/internal/domain"
	"askout/backend/internal/service"
	"askout/backend/internal/storage"
)

// AdminHandler 处理运维管理相关的 HTTP 请求
type AdminHandler struct {
	identities *service.IdentityService // 身份业务服务
	store      storage.Store            // 存储接口（分页与计数）
	startedAt  time.Time
	log        *zap.Logger
}

// NewAdminHandler 创建运维管理处理器实例
func NewAdminHandler(identities *service.IdentityService, store storage.Store, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{
		identities: identities,
		store:      store,
		startedAt:  time.Now(),
		log:        log,
	}
}

// identityResponse 身份记录的运维视图。
//
// 公开令牌本身就是面向外界分发的，这里不做脱敏；消息正文
// 从不落库，因此也不存在泄露正文的可能。
type identityResponse struct {
	UserID           int64  `json:"userId"`
	ShortUsername    string `json:"shortUsername"`
	LinkID           string `json:"linkId"`
	MessagesReceived int64  `json:"messagesReceived"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

func toIdentityResponse(identity *domain.Identity) identityResponse {
	return identityResponse{
		UserID:           identity.UserID,
		ShortUsername:    identity.ShortUsername,
		LinkID:           identity.LinkID,
		MessagesReceived: identity.MessagesReceived,
		CreatedAt:        identity.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        identity.UpdatedAt.Format(time.RFC3339),
	}
}

// ListIdentities 分页返回已注册身份
func (h *AdminHandler) ListIdentities(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		BadRequest(c, MsgInvalidPage)
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		BadRequest(c, MsgInvalidPage)
		return
	}

	identities, total, err := h.store.ListIdentities(page, pageSize)
	if err != nil {
		h.log.Error("failed to list identities", zap.Error(err))
		InternalError(c, MsgIdentityListFailed)
		return
	}

	items := make([]identityResponse, 0, len(identities))
	for i := range identities {
		items = append(items, toIdentityResponse(&identities[i]))
	}

	Success(c, gin.H{
		"items":    items,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// GetIdentity 按公开令牌（用户名或链接 ID）查询身份详情
func (h *AdminHandler) GetIdentity(c *gin.Context) {
	token := c.Param("token")

	identity, err := h.identities.ResolveToken(token)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			NotFound(c, MsgIdentityNotFound)
			return
		}
		h.log.Error("failed to resolve token", zap.Error(err))
		InternalError(c, MsgIdentityGetFailed)
		return
	}

	Success(c, toIdentityResponse(identity))
}

// Stats 返回系统运行统计
func (h *AdminHandler) Stats(c *gin.Context) {
	identityCount, err := h.store.CountIdentities()
	if err != nil {
		h.log.Error("failed to count identities", zap.Error(err))
		InternalError(c, MsgStatisticsGetFailed)
		return
	}

	pendingCount, err := h.store.CountPendingTargets()
	if err != nil {
		h.log.Error("failed to count pending targets", zap.Error(err))
		InternalError(c, MsgStatisticsGetFailed)
		return
	}

	Success(c, gin.H{
		"identities":      identityCount,
		"pendingSessions": pendingCount,
		"uptimeSeconds":   int64(time.Since(h.startedAt).Seconds()),
	})
}

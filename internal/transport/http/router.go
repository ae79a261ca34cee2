package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"askout/backend/internal/auth"
	jwtpkg "askout/backend/internal/auth/jwt"
	"askout/backend/internal/config"
	"askout/backend/internal/health"
	"askout/backend/internal/middleware"
	"askout/backend/internal/monitoring"
	"askout/backend/internal/pool"
	"askout/backend/internal/service"
	"askout/backend/internal/storage"
	"askout/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	IdentityService *service.IdentityService
	RelayService    *service.RelayService
	AuthService     *auth.Service
	JWTManager      *jwtpkg.Manager
	Store           storage.Store
	Dispatcher      *pool.Dispatcher
	BotUsername     string // 机器人用户名，剥离群聊命令的 @mention 用
	HealthChecker   *health.HealthChecker
	Metrics         *monitoring.Metrics
	WebSocketHub    *websocket.Hub
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Monitoring(deps.Metrics))

	// Webhook 更新载荷很小，1MB 足够
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 创建处理器
	authHandler := NewAuthHandler(deps.AuthService, deps.Logger)
	adminHandler := NewAdminHandler(deps.IdentityService, deps.Store, deps.Logger)
	publicHandler := NewPublicHandler(deps.IdentityService)
	webhookHandler := NewWebhookHandler(deps.RelayService, deps.Dispatcher, deps.BotUsername, deps.Logger)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.HealthChecker.CheckHealth())
	})
	router.GET("/health/live", gin.WrapF(deps.HealthChecker.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.HealthChecker.ReadyEndpoint))

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 平台 webhook 推送（webhook 模式）
	router.POST("/telegram/webhook", webhookHandler.Receive)

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Public Routes（无需认证的公开API） ==========
		publicRoutes := v1.Group("/public")
		{
			publicRoutes.GET("/links/:token", publicHandler.CheckLink) // 校验分享链接
		}

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Admin Routes（需要管理员 JWT） ==========
		adminRoutes := v1.Group("/admin", jwtAuth.RequireAuth())
		{
			adminRoutes.GET("/identities", adminHandler.ListIdentities)        // 身份列表
			adminRoutes.GET("/identities/:token", adminHandler.GetIdentity)    // 按令牌查询身份
			adminRoutes.GET("/stats", adminHandler.Stats)                      // 运行统计
		}

		// ========== WebSocket 实时事件流 ==========
		v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	return router
}

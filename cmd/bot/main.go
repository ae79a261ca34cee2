package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"askout/backend/internal/auth"
	jwtpkg "askout/backend/internal/auth/jwt"
	"askout/backend/internal/config"
	"askout/backend/internal/health"
	"askout/backend/internal/logger"
	"askout/backend/internal/monitoring"
	"askout/backend/internal/pool"
	"askout/backend/internal/render"
	"askout/backend/internal/service"
	"askout/backend/internal/storage"
	"askout/backend/internal/storage/hybrid"
	"askout/backend/internal/storage/memory"
	redisstore "askout/backend/internal/storage/redis"
	httptransport "askout/backend/internal/transport/http"
	"askout/backend/internal/transport/telegram"
	"askout/backend/internal/websocket"
)

// main 启动匿名转发机器人与配套运维 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting askout bot",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("mode", cfg.Bot.Mode),
	)

	// 初始化监控系统
	metrics := monitoring.Init()
	startedAt := time.Now()

	// 初始化存储层
	var store storage.Store
	var redisClient *redisstore.Client

	if cfg.UseHybridStore() {
		hybridStore, err := hybrid.NewStore(&cfg.Database, &cfg.Redis, cfg.Session.TTL, log)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		store = hybridStore
		redisClient = hybridStore.RedisClient()
		log.Info("using hybrid storage",
			zap.String("type", cfg.Database.Type),
			zap.String("redis_address", cfg.Redis.Address),
		)
	} else {
		// 内存存储（开发环境）
		store = memory.NewStore(cfg.Session.TTL)
		log.Info("using memory storage (development mode)", zap.Duration("session_ttl", cfg.Session.TTL))
	}

	// 初始化平台客户端，解析机器人用户名
	tgClient := telegram.NewClient(cfg.Bot.Token, cfg.Bot.APIBase, log)
	botUsername := cfg.Bot.Username
	if botUsername == "" {
		info, err := tgClient.GetMe()
		if err != nil {
			panic(fmt.Sprintf("failed to resolve bot identity: %v", err))
		}
		botUsername = info.Username
	}
	linkBase := fmt.Sprintf("https://t.me/%s", botUsername)
	log.Info("bot identity resolved", zap.String("username", botUsername))

	// 初始化卡片渲染器（未配置渲染服务时为 nil，投递降级纯文本）
	var renderer service.Renderer
	if cardRenderer := render.NewCardRenderer(cfg.Render.Endpoint, cfg.Render.Timeout, log); cardRenderer != nil {
		renderer = cardRenderer
		log.Info("card renderer enabled", zap.String("endpoint", cfg.Render.Endpoint))
	}

	// 初始化服务层
	identityService := service.NewIdentityService(store, linkBase, log)
	relayService := service.NewRelayService(identityService, store, tgClient, renderer, log)

	// 初始化认证
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authService := auth.NewService(cfg.Admin, jwtManager)

	// 创建 WebSocket Hub，接入业务事件（避免循环依赖，走 setter 注入）
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)
	relayService.SetEventSink(wsHub)
	identityService.SetCreatedNotifier(wsHub.NotifyIdentityCreated)

	// 初始化健康检查
	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// 初始化事件调度器
	dispatcher := pool.NewDispatcher(cfg.Dispatch.Shards, cfg.Dispatch.QueueSize, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		IdentityService: identityService,
		RelayService:    relayService,
		AuthService:     authService,
		JWTManager:      jwtManager,
		Store:           store,
		Dispatcher:      dispatcher,
		BotUsername:     botUsername,
		HealthChecker:   healthChecker,
		Metrics:         metrics,
		WebSocketHub:    wsHub,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 调度器的生命周期由 Stop 驱动：收到信号后先排空队列再退出
	dispatcher.Start(context.Background())

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 长轮询 goroutine（webhook 模式下更新走 HTTP 端点）
	if cfg.Bot.Mode == "polling" {
		poller := telegram.NewPoller(tgClient, relayService, dispatcher, botUsername, cfg.Bot.PollTimeout, log)
		group.Go(func() error {
			log.Info("starting update poller", zap.Int("timeout", cfg.Bot.PollTimeout))
			return poller.Run(groupCtx)
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 定时刷新业务规模指标 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if count, err := store.CountIdentities(); err == nil {
					metrics.UpdateIdentitiesTotal(count)
				}
				if count, err := store.CountPendingTargets(); err == nil {
					metrics.UpdatePendingSessions(count)
				}
				metrics.UpdateSystemUptime(time.Since(startedAt))
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 排空未处理完的会话事件再关存储
		dispatcher.Stop()

		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}

		log.Info("bot stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("bot exited cleanly")
}

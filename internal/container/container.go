package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/api"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/cache"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/database"
	"github.com/mautops/rdrealty-lms/internal/metrics"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
	"github.com/mautops/rdrealty-lms/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	redisKeyPrefix   = "rdrealty-lms"
	permissionTTL    = 5 * time.Minute
	metricsInterval  = 30 * time.Second
	defaultCountsTTL = 30 * time.Second
)

// Container 依赖注入容器
// 管理数据库, 缓存, 授权策略, 推送中心以及全部业务服务
type Container struct {
	cfg        *config.Config
	configPath string
	logger     *logrus.Logger

	db        *gorm.DB
	redis     *redis.Client
	store     cache.Store
	fgaClient *auth.OpenFGAClient
	policy    *auth.Policy
	validator *auth.TokenValidator
	users     repository.UserRepository
	hub       *websocket.Hub

	auditLog        service.AuditLogService
	counters        service.CounterService
	materialRequest service.MaterialRequestService
	hrRequest       service.HRRequestService
	assets          service.AssetService
	depreciation    service.DepreciationService
	verification    service.VerificationService
	reports         service.ReportService

	scheduler *service.DepreciationScheduler
	collector *metrics.Collector
	watcher   *config.ConfigWatcher
	started   bool
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件, configPath 为空时不监听配置变更
func NewContainer(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = api.GetLogger()
	}
	c := &Container{cfg: cfg, configPath: configPath, logger: logger}

	// 1. 数据库(带重试, 指数退避)
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	if err := database.Migrate(db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 计数缓存, Redis 不可用时退回进程内缓存
	c.store = cache.NewMemoryStore()
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-memory counter cache")
		} else {
			c.redis = client
			c.store = cache.NewRedisStore(client, redisKeyPrefix)
		}
	}

	// 3. 授权策略与可选的 OpenFGA 授权
	c.policy = auth.NewPolicy(cfg.Policy)
	if cfg.OpenFGA.Enabled {
		fga, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fga
		c.policy.SetGrantStore(auth.NewOpenFGAGrantStore(fga, auth.NewPermissionCache(permissionTTL)))
	}

	c.validator, err = auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize token validator: %w", err)
	}
	c.users = repository.NewUserRepository(db)
	c.hub = websocket.NewHub()

	// 4. 业务服务, 计数服务同时负责失效与角标推送
	ttl := cfg.Redis.TTL
	if ttl <= 0 {
		ttl = defaultCountsTTL
	}
	c.auditLog = service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.counters = service.NewCounterService(db, c.policy, c.store, ttl, c.hub, logger)
	c.materialRequest = service.NewMaterialRequestService(db, c.policy, c.auditLog, c.counters, logger)
	c.hrRequest = service.NewHRRequestService(db, c.policy, c.auditLog, c.counters, logger)
	c.assets = service.NewAssetService(db, c.auditLog, c.counters, logger)
	c.depreciation = service.NewDepreciationService(db, c.auditLog, c.counters, logger)
	c.verification = service.NewVerificationService(db, c.auditLog, c.counters, logger)
	c.reports = service.NewReportService(db)

	// 5. 后台任务
	c.scheduler = service.NewDepreciationScheduler(c.depreciation, cfg.Depreciation.Interval, logger)
	c.collector = metrics.NewCollector(db, metricsInterval)
	if configPath != "" {
		c.watcher = config.NewConfigWatcher(cfg, configPath, logger)
		c.watcher.OnConfigChange(func(updated *config.Config) {
			// 已缓存的计数在 TTL 内过期
			c.policy.Update(updated.Policy)
			logger.Info("authorization policy reloaded")
		})
	}

	return c, nil
}

// Start 启动推送中心与后台任务
func (c *Container) Start(ctx context.Context) error {
	c.started = true
	go c.hub.Run()
	c.collector.Start()
	if c.cfg.Depreciation.Enabled {
		c.scheduler.Start(ctx)
	}
	if c.watcher != nil {
		if err := c.watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}
	return nil
}

// Router 组装 HTTP 路由
func (c *Container) Router() *gin.Engine {
	checks := map[string]api.HealthCheck{}
	if c.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		}
	}
	if c.fgaClient != nil {
		checks["openfga"] = func(ctx context.Context) error {
			if !c.fgaClient.CheckHealth(ctx) {
				return fmt.Errorf("openfga is unreachable")
			}
			return nil
		}
	}

	return api.SetupRoutes(api.RouteDeps{
		Config:    c.cfg,
		Logger:    c.logger,
		DB:        c.db,
		Validator: c.validator,
		Policy:    c.policy,
		Lookup:    c.users,
		WebSocket: websocket.WebSocketHandler(&websocket.Handler{
			Hub:            c.hub,
			Validator:      c.validator,
			Policy:         c.policy,
			Lookup:         c.users,
			Logger:         c.logger,
			AllowedOrigins: c.cfg.CORS.AllowedOrigins,
		}),
		HealthChecks: checks,

		MaterialRequests: api.NewMaterialRequestController(c.materialRequest),
		HRRequests:       api.NewHRRequestController(c.hrRequest),
		Assets:           api.NewAssetController(c.assets, c.depreciation),
		Verifications:    api.NewVerificationController(c.verification),
		Dashboard:        api.NewDashboardController(c.counters),
		Reports:          api.NewReportController(c.reports),
	})
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Policy 获取授权策略
func (c *Container) Policy() *auth.Policy {
	return c.policy
}

// Depreciation 获取折旧服务
func (c *Container) Depreciation() service.DepreciationService {
	return c.depreciation
}

// Close 关闭容器, 清理资源
func (c *Container) Close() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.started {
		c.scheduler.Stop()
		c.collector.Stop()
		c.hub.Stop()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if err := database.Close(c.db); err != nil {
		c.logger.WithError(err).Warn("failed to close database")
	}
}

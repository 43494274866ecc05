package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouteDeps 路由依赖
type RouteDeps struct {
	Config       *config.Config
	Logger       *logrus.Logger
	DB           *gorm.DB
	Validator    *auth.TokenValidator
	Policy       *auth.Policy
	Lookup       auth.IdentityLookup
	WebSocket    gin.HandlerFunc // 可为空
	HealthChecks map[string]HealthCheck

	MaterialRequests *MaterialRequestController
	HRRequests       *HRRequestController
	Assets           *AssetController
	Verifications    *VerificationController
	Dashboard        *DashboardController
	Reports          *ReportController
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouteDeps) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware())
	}
	router.Use(RequestLogMiddleware(deps.Logger))
	router.Use(SecurityHeadersMiddleware(cfg.Env == "production"))
	router.Use(CORSMiddleware(cfg.CORS))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	// 健康检查与指标
	router.GET("/health", NewHealthController(deps.DB, deps.HealthChecks).Check)
	router.GET("/metrics", MetricsHandler)

	// 角标刷新推送
	if deps.WebSocket != nil {
		router.GET("/ws", deps.WebSocket)
	}

	v1 := router.Group("/api/v1")
	v1.Use(auth.AuthMiddleware(deps.Validator, deps.Policy, deps.Lookup))
	{
		mr := deps.MaterialRequests
		requests := v1.Group("/material-requests")
		{
			requests.POST("", mr.Create)
			requests.GET("/pending", mr.Pending)
			requests.GET("/:id", mr.Get)
			requests.GET("/:id/history", mr.History)
			requests.POST("/:id/submit", mr.Submit)
			requests.POST("/:id/approve", mr.Approve)
			requests.POST("/:id/reject", mr.Reject)
			requests.POST("/:id/review", mr.Review)
			requests.POST("/:id/budget", mr.Budget)
			requests.POST("/:id/release", mr.Release)
			requests.POST("/:id/serve", mr.Serve)
			requests.POST("/:id/post", mr.Post)
			requests.POST("/:id/acknowledge", mr.Acknowledge)
			requests.POST("/:id/cancel", mr.Cancel)
		}

		hr := deps.HRRequests
		leave := v1.Group("/leave-requests")
		{
			leave.POST("", hr.CreateLeave)
			leave.GET("/pending", hr.PendingLeave)
			leave.POST("/:id/approve", hr.Approve(repository.KindLeave))
			leave.POST("/:id/reject", hr.Reject(repository.KindLeave))
			leave.POST("/:id/cancel", hr.Cancel(repository.KindLeave))
		}
		overtime := v1.Group("/overtime-requests")
		{
			overtime.POST("", hr.CreateOvertime)
			overtime.GET("/pending", hr.PendingOvertime)
			overtime.POST("/:id/approve", hr.Approve(repository.KindOvertime))
			overtime.POST("/:id/reject", hr.Reject(repository.KindOvertime))
			overtime.POST("/:id/cancel", hr.Cancel(repository.KindOvertime))
		}

		ac := deps.Assets
		assets := v1.Group("/assets")
		{
			assets.POST("", ac.Create)
			assets.POST("/deploy", ac.Deploy)
			assets.POST("/return", ac.Return)
			assets.POST("/deployments/:transmittal/approve", ac.ApproveDeployment)
			assets.POST("/depreciation/run", auth.RequireCapability(auth.CapAssetAccounting), ac.RunDepreciation)
			assets.GET("/:id", ac.Get)
			assets.GET("/:id/history", ac.History)
			assets.POST("/:id/status", ac.ChangeStatus)
		}

		vc := deps.Verifications
		verifications := v1.Group("/verifications")
		{
			verifications.POST("", vc.Create)
			verifications.GET("/:id", vc.Get)
			verifications.GET("/:id/items", vc.Items)
			verifications.GET("/:id/summary", vc.Summary)
			verifications.POST("/:id/start", vc.Start)
			verifications.POST("/:id/scan", vc.Scan)
			verifications.POST("/:id/not-found", vc.MarkNotFound)
			verifications.POST("/:id/complete", vc.Complete)
			verifications.POST("/:id/cancel", vc.Cancel)
			verifications.POST("/:id/reconcile", vc.Reconcile)
		}

		v1.GET("/dashboard/counters", deps.Dashboard.Counters)
		v1.GET("/reports/:name", deps.Reports.Export)
	}

	return router
}

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/database"
	"gorm.io/gorm"
)

// HealthCheck 外部依赖检查, 返回 nil 表示健康
type HealthCheck func(ctx context.Context) error

// HealthController 健康检查控制器
type HealthController struct {
	db     *gorm.DB
	checks map[string]HealthCheck
}

// NewHealthController 创建健康检查控制器, checks 为可选的额外依赖检查
func NewHealthController(db *gorm.DB, checks map[string]HealthCheck) *HealthController {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &HealthController{db: db, checks: checks}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	results := make(map[string]string, len(c.checks)+1)

	if c.db != nil {
		if err := database.CheckHealth(reqCtx, c.db); err != nil {
			status = "unhealthy"
			results["database"] = "unhealthy: " + err.Error()
		} else {
			results["database"] = "healthy"
		}
	} else {
		results["database"] = "not configured"
	}

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.checks[name](reqCtx); err != nil {
			// 缓存与授权服务降级可用, 不影响整体状态
			results[name] = "degraded: " + err.Error()
			continue
		}
		results[name] = "healthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    results,
	})
}

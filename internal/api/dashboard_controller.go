package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// DashboardController 看板控制器
type DashboardController struct {
	counters service.CounterService
}

// NewDashboardController 创建看板控制器
func NewDashboardController(counters service.CounterService) *DashboardController {
	return &DashboardController{counters: counters}
}

// Counters 当前操作人的角标计数
// @Summary      看板计数
// @Tags         看板
// @Produce      json
// @Success      200  {object}  Response
// @Router       /dashboard/counters [get]
// @Security     BearerAuth
func (dc *DashboardController) Counters(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	counts, err := dc.counters.Counts(c.Request.Context(), actor)
	respond(c, "success", counts, err)
}

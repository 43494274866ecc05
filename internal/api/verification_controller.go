package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// VerificationController 资产盘点控制器
type VerificationController struct {
	svc service.VerificationService
}

// NewVerificationController 创建资产盘点控制器
func NewVerificationController(svc service.VerificationService) *VerificationController {
	return &VerificationController{svc: svc}
}

// Create 创建盘点活动
func (vc *VerificationController) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateVerificationRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := vc.svc.Create(c.Request.Context(), actor, &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, "verification planned", v)
}

// Get 盘点详情
func (vc *VerificationController) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	v, err := vc.svc.Get(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", v, err)
}

// Items 盘点明细
func (vc *VerificationController) Items(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	items, err := vc.svc.Items(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", items, err)
}

// Start 开始盘点
func (vc *VerificationController) Start(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	v, err := vc.svc.Start(c.Request.Context(), actor, c.Param("id"))
	respond(c, "verification started", v, err)
}

// Scan 登记扫码结果
// @Summary      盘点扫码
// @Tags         资产盘点
// @Accept       json
// @Produce      json
// @Param        id path string true "盘点 ID"
// @Param        request body service.ScanRequest true "扫码信息"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Router       /verifications/{id}/scan [post]
// @Security     BearerAuth
func (vc *VerificationController) Scan(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.ScanRequest
	if !bindJSON(c, &req) {
		return
	}
	req.VerificationID = c.Param("id")
	item, err := vc.svc.Scan(c.Request.Context(), actor, &req)
	respond(c, "scan recorded", item, err)
}

// notFoundBody 标记未找到
type notFoundBody struct {
	AssetID string `json:"asset_id" binding:"required"`
	Notes   string `json:"notes"`
}

// MarkNotFound 标记资产未找到
func (vc *VerificationController) MarkNotFound(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body notFoundBody
	if !bindJSON(c, &body) {
		return
	}
	item, err := vc.svc.MarkNotFound(c.Request.Context(), actor, c.Param("id"), body.AssetID, body.Notes)
	respond(c, "asset marked not found", item, err)
}

// Complete 结束盘点
func (vc *VerificationController) Complete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	v, err := vc.svc.Complete(c.Request.Context(), actor, c.Param("id"))
	respond(c, "verification completed", v, err)
}

// Cancel 取消盘点
func (vc *VerificationController) Cancel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	v, err := vc.svc.Cancel(c.Request.Context(), actor, c.Param("id"))
	respond(c, "verification cancelled", v, err)
}

// Summary 汇总与计数器对比
func (vc *VerificationController) Summary(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, err := vc.svc.Summary(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", summary, err)
}

// Reconcile 以明细重算计数器
func (vc *VerificationController) Reconcile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	summary, err := vc.svc.Reconcile(c.Request.Context(), actor, c.Param("id"))
	respond(c, "counters reconciled", summary, err)
}

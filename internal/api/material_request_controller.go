package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// MaterialRequestController 物料申请控制器
type MaterialRequestController struct {
	svc service.MaterialRequestService
}

// NewMaterialRequestController 创建物料申请控制器
func NewMaterialRequestController(svc service.MaterialRequestService) *MaterialRequestController {
	return &MaterialRequestController{svc: svc}
}

// Create 创建物料申请(草稿)
// @Summary      创建物料申请
// @Tags         物料申请
// @Accept       json
// @Produce      json
// @Param        request body service.CreateMaterialRequestRequest true "申请内容"
// @Success      201  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /material-requests [post]
// @Security     BearerAuth
func (mc *MaterialRequestController) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateMaterialRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	mr, err := mc.svc.Create(c.Request.Context(), actor, &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, "material request created", mr)
}

// Get 获取物料申请详情
// @Summary      获取物料申请
// @Tags         物料申请
// @Produce      json
// @Param        id path string true "申请 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /material-requests/{id} [get]
// @Security     BearerAuth
func (mc *MaterialRequestController) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	mr, err := mc.svc.Get(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", mr, err)
}

// History 状态流转历史
func (mc *MaterialRequestController) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	history, err := mc.svc.History(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", history, err)
}

// Pending 当前操作人的待办列表
// @Summary      物料申请待办
// @Tags         物料申请
// @Produce      json
// @Success      200  {object}  Response
// @Router       /material-requests/pending [get]
// @Security     BearerAuth
func (mc *MaterialRequestController) Pending(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	list, err := mc.svc.ListPending(c.Request.Context(), actor)
	respond(c, "success", list, err)
}

// Submit 提交审批
func (mc *MaterialRequestController) Submit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	mr, err := mc.svc.Submit(c.Request.Context(), actor, c.Param("id"))
	respond(c, "material request submitted", mr, err)
}

// Approve 推荐审批或终审通过
// @Summary      审批通过
// @Tags         物料申请
// @Accept       json
// @Produce      json
// @Param        id path string true "申请 ID"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /material-requests/{id}/approve [post]
// @Security     BearerAuth
func (mc *MaterialRequestController) Approve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body commentsBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.Approve(c.Request.Context(), actor, c.Param("id"), body.Comments)
	respond(c, "material request approved", mr, err)
}

// Reject 驳回, 必须填写意见
func (mc *MaterialRequestController) Reject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body commentsBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.Reject(c.Request.Context(), actor, c.Param("id"), body.Comments)
	respond(c, "material request disapproved", mr, err)
}

// Review 门店自用审核
func (mc *MaterialRequestController) Review(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body remarksBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.MarkAsReviewed(c.Request.Context(), actor, c.Param("id"), body.Remarks)
	respond(c, "material request reviewed", mr, err)
}

// budgetBody 预算审批
type budgetBody struct {
	WithinBudget *bool  `json:"within_budget" binding:"required"`
	Remarks      string `json:"remarks"`
}

// Budget 预算审批
func (mc *MaterialRequestController) Budget(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body budgetBody
	if !bindJSON(c, &body) {
		return
	}
	mr, err := mc.svc.ApproveBudget(c.Request.Context(), actor, c.Param("id"), *body.WithinBudget, body.Remarks)
	respond(c, "budget decision recorded", mr, err)
}

// Release 协调人放行至待发放
func (mc *MaterialRequestController) Release(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body remarksBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.Release(c.Request.Context(), actor, c.Param("id"), body.Remarks)
	respond(c, "material request released for serving", mr, err)
}

// Serve 标记已发放
func (mc *MaterialRequestController) Serve(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body remarksBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.MarkServed(c.Request.Context(), actor, c.Param("id"), body.Remarks)
	respond(c, "material request served", mr, err)
}

// Post 过账
func (mc *MaterialRequestController) Post(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body remarksBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.Post(c.Request.Context(), actor, c.Param("id"), body.Remarks)
	respond(c, "material request posted", mr, err)
}

// Acknowledge 申请人确认收货
func (mc *MaterialRequestController) Acknowledge(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	mr, err := mc.svc.Acknowledge(c.Request.Context(), actor, c.Param("id"))
	respond(c, "material request acknowledged", mr, err)
}

// cancelBody 取消原因
type cancelBody struct {
	Reason string `json:"reason"`
}

// Cancel 取消申请
func (mc *MaterialRequestController) Cancel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body cancelBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	mr, err := mc.svc.Cancel(c.Request.Context(), actor, c.Param("id"), body.Reason)
	respond(c, "material request cancelled", mr, err)
}

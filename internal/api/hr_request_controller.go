package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// HRRequestController 请假/加班控制器
type HRRequestController struct {
	svc service.HRRequestService
}

// NewHRRequestController 创建请假/加班控制器
func NewHRRequestController(svc service.HRRequestService) *HRRequestController {
	return &HRRequestController{svc: svc}
}

// CreateLeave 提交请假申请
// @Summary      提交请假
// @Tags         人事审批
// @Accept       json
// @Produce      json
// @Param        request body service.CreateLeaveRequest true "请假信息"
// @Success      201  {object}  Response
// @Router       /leave-requests [post]
// @Security     BearerAuth
func (hc *HRRequestController) CreateLeave(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateLeaveRequest
	if !bindJSON(c, &req) {
		return
	}
	leave, err := hc.svc.CreateLeave(c.Request.Context(), actor, &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, "leave request filed", leave)
}

// CreateOvertime 提交加班申请
func (hc *HRRequestController) CreateOvertime(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateOvertimeRequest
	if !bindJSON(c, &req) {
		return
	}
	ot, err := hc.svc.CreateOvertime(c.Request.Context(), actor, &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, "overtime request filed", ot)
}

// PendingLeave 待处理的请假申请
func (hc *HRRequestController) PendingLeave(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	list, err := hc.svc.ListPendingLeave(c.Request.Context(), actor)
	respond(c, "success", list, err)
}

// PendingOvertime 待处理的加班申请
func (hc *HRRequestController) PendingOvertime(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	list, err := hc.svc.ListPendingOvertime(c.Request.Context(), actor)
	respond(c, "success", list, err)
}

// Approve 返回指定类别的审批处理器
func (hc *HRRequestController) Approve(kind repository.HRRequestKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		var body commentsBody
		if !bindOptionalJSON(c, &body) {
			return
		}
		rec, err := hc.svc.Approve(c.Request.Context(), actor, kind, c.Param("id"), body.Comments)
		respond(c, "request approved", rec, err)
	}
}

// Reject 返回指定类别的驳回处理器
func (hc *HRRequestController) Reject(kind repository.HRRequestKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		var body commentsBody
		if !bindOptionalJSON(c, &body) {
			return
		}
		rec, err := hc.svc.Reject(c.Request.Context(), actor, kind, c.Param("id"), body.Comments)
		respond(c, "request rejected", rec, err)
	}
}

// Cancel 返回指定类别的撤销处理器
func (hc *HRRequestController) Cancel(kind repository.HRRequestKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		rec, err := hc.svc.Cancel(c.Request.Context(), actor, kind, c.Param("id"))
		respond(c, "request cancelled", rec, err)
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/service"
)

// AssetController 固定资产控制器
type AssetController struct {
	assets       service.AssetService
	depreciation service.DepreciationService
}

// NewAssetController 创建固定资产控制器
func NewAssetController(assets service.AssetService, depreciation service.DepreciationService) *AssetController {
	return &AssetController{assets: assets, depreciation: depreciation}
}

// Create 登记资产
// @Summary      登记资产
// @Tags         固定资产
// @Accept       json
// @Produce      json
// @Param        request body service.CreateAssetRequest true "资产信息"
// @Success      201  {object}  Response
// @Router       /assets [post]
// @Security     BearerAuth
func (ac *AssetController) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreateAssetRequest
	if !bindJSON(c, &req) {
		return
	}
	asset, err := ac.assets.Create(c.Request.Context(), actor, &req)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, "asset registered", asset)
}

// Get 资产详情
func (ac *AssetController) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	asset, err := ac.assets.Get(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", asset, err)
}

// History 资产履历
func (ac *AssetController) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	history, err := ac.assets.History(c.Request.Context(), actor, c.Param("id"))
	respond(c, "success", history, err)
}

// Deploy 领用资产, 任一资产不可用时整批拒绝
// @Summary      资产领用
// @Tags         固定资产
// @Accept       json
// @Produce      json
// @Param        request body service.DeployAssetsRequest true "领用信息"
// @Success      200  {object}  Response
// @Failure      422  {object}  ErrorResponse
// @Router       /assets/deploy [post]
// @Security     BearerAuth
func (ac *AssetController) Deploy(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.DeployAssetsRequest
	if !bindJSON(c, &req) {
		return
	}
	deployments, err := ac.assets.DeployAssets(c.Request.Context(), actor, &req)
	respond(c, "assets deployed, pending accounting approval", deployments, err)
}

// ApproveDeployment 会计审批领用单
func (ac *AssetController) ApproveDeployment(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	deployments, err := ac.assets.ApproveDeployment(c.Request.Context(), actor, c.Param("transmittal"))
	respond(c, "deployment approved", deployments, err)
}

// Return 归还资产, 全部成功或全部拒绝
// @Summary      资产归还
// @Tags         固定资产
// @Accept       json
// @Produce      json
// @Param        request body service.ReturnAssetsRequest true "归还信息"
// @Success      200  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /assets/return [post]
// @Security     BearerAuth
func (ac *AssetController) Return(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.ReturnAssetsRequest
	if !bindJSON(c, &req) {
		return
	}
	n, err := ac.assets.ReturnAssets(c.Request.Context(), actor, &req)
	respond(c, "assets returned", gin.H{"returned": n}, err)
}

// statusBody 资产状态变更
type statusBody struct {
	Status model.AssetStatus `json:"status" binding:"required"`
	Notes  string            `json:"notes"`
}

// ChangeStatus 变更资产状态
func (ac *AssetController) ChangeStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var body statusBody
	if !bindJSON(c, &body) {
		return
	}
	asset, err := ac.assets.ChangeStatus(c.Request.Context(), actor, c.Param("id"), body.Status, body.Notes)
	respond(c, "asset status updated", asset, err)
}

// depreciationBody 计提截止日期, 格式 YYYY-MM-DD, 为空时取当天
type depreciationBody struct {
	AsOf string `json:"as_of"`
}

// RunDepreciation 手动执行一次折旧计提
func (ac *AssetController) RunDepreciation(c *gin.Context) {
	var body depreciationBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	asOf := time.Now()
	if body.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", body.AsOf)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	result, err := ac.depreciation.Run(c.Request.Context(), asOf)
	respond(c, "depreciation posted", result, err)
}

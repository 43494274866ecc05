package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/metrics"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AssetService 资产服务接口
type AssetService interface {
	Create(ctx context.Context, actor auth.Actor, req *CreateAssetRequest) (*model.AssetModel, error)
	Get(ctx context.Context, actor auth.Actor, id string) (*model.AssetModel, error)
	History(ctx context.Context, actor auth.Actor, id string) ([]*model.AssetHistoryModel, error)
	DeployAssets(ctx context.Context, actor auth.Actor, req *DeployAssetsRequest) ([]*model.AssetDeploymentModel, error)
	ApproveDeployment(ctx context.Context, actor auth.Actor, transmittalNo string) ([]*model.AssetDeploymentModel, error)
	ReturnAssets(ctx context.Context, actor auth.Actor, req *ReturnAssetsRequest) (int, error)
	ChangeStatus(ctx context.Context, actor auth.Actor, id string, target model.AssetStatus, notes string) (*model.AssetModel, error)
}

// CreateAssetRequest 创建资产请求
type CreateAssetRequest struct {
	ItemCode              string                   `json:"item_code" binding:"required"`
	Description           string                   `json:"description" binding:"required"`
	SerialNo              string                   `json:"serial_no"`
	BusinessUnitID        string                   `json:"business_unit_id"` // 为空时取操作人业务单元
	Location              string                   `json:"location"`
	PurchaseCost          decimal.Decimal          `json:"purchase_cost"`
	SalvageValue          decimal.Decimal          `json:"salvage_value"`
	DepreciationMethod    model.DepreciationMethod `json:"depreciation_method"`
	UsefulLifeMonths      int                      `json:"useful_life_months"`
	DepreciationStartDate *time.Time               `json:"depreciation_start_date"`
}

// DeployAssetsRequest 资产领用请求
type DeployAssetsRequest struct {
	AssetIDs           []string   `json:"asset_ids" binding:"required"`
	EmployeeID         string     `json:"employee_id" binding:"required"`
	TransmittalNo      string     `json:"transmittal_no" binding:"required"`
	ExpectedReturnDate *time.Time `json:"expected_return_date"`
	Notes              string     `json:"notes"`
}

// ReturnAssetsRequest 资产归还请求
type ReturnAssetsRequest struct {
	AssetIDs       []string  `json:"asset_ids" binding:"required"`
	ReturnedDate   time.Time `json:"returned_date"`
	Notes          string    `json:"notes"`
	BusinessUnitID string    `json:"business_unit_id" binding:"required"`
}

// assetTransitions 资产生命周期, DISPOSED 为终态
var assetTransitions = map[model.AssetStatus][]model.AssetStatus{
	model.AssetAvailable:     {model.AssetInMaintenance, model.AssetDamaged, model.AssetDisposed, model.AssetLost},
	model.AssetDeployed:      {model.AssetDamaged, model.AssetLost},
	model.AssetInMaintenance: {model.AssetAvailable, model.AssetDamaged, model.AssetDisposed},
	model.AssetDamaged:       {model.AssetInMaintenance, model.AssetDisposed},
	model.AssetLost:          {model.AssetAvailable},
}

// CanTransitionAsset 判断资产状态迁移是否合法
func CanTransitionAsset(from, to model.AssetStatus) bool {
	for _, s := range assetTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// historyActionFor 状态迁移对应的履历动作
func historyActionFor(from, to model.AssetStatus) model.AssetHistoryAction {
	switch to {
	case model.AssetInMaintenance:
		return model.HistoryMaintenance
	case model.AssetDamaged:
		return model.HistoryDamaged
	case model.AssetDisposed:
		return model.HistoryDisposed
	case model.AssetLost:
		return model.HistoryLost
	case model.AssetAvailable:
		if from == model.AssetLost {
			return model.HistoryFound
		}
		return model.HistoryRepaired
	}
	return model.AssetHistoryAction(to)
}

type assetService struct {
	effects
	db  *gorm.DB
	now func() time.Time
}

// NewAssetService 创建资产服务
func NewAssetService(db *gorm.DB, auditLogSvc AuditLogService, invalidator Invalidator, logger *logrus.Logger) AssetService {
	return &assetService{
		effects: newEffects(auditLogSvc, invalidator, logger),
		db:      db,
		now:     time.Now,
	}
}

// Create 登记资产并计算月折旧额
func (s *assetService) Create(ctx context.Context, actor auth.Actor, req *CreateAssetRequest) (*model.AssetModel, error) {
	if !actor.Has(auth.CapAssetManage) {
		return nil, unauthorizedf("not authorized to register assets")
	}
	buID := req.BusinessUnitID
	if buID == "" {
		buID = actor.BusinessUnitID
	}
	if !actor.CanActOnUnit(buID) {
		return nil, unauthorizedf("business unit %s is out of scope", buID)
	}
	method := req.DepreciationMethod
	if method == "" {
		method = model.DepreciationStraightLine
	}
	if method != model.DepreciationStraightLine && method != model.DepreciationDecliningBalance {
		return nil, validationf("unknown depreciation method %q", method)
	}
	if strings.TrimSpace(req.ItemCode) == "" {
		return nil, validationf("item code is required")
	}

	asset := &model.AssetModel{
		ID:                    uuid.New().String(),
		ItemCode:              strings.TrimSpace(req.ItemCode),
		Description:           req.Description,
		SerialNo:              req.SerialNo,
		BusinessUnitID:        buID,
		Location:              strings.TrimSpace(req.Location),
		Status:                model.AssetAvailable,
		PurchaseCost:          req.PurchaseCost,
		SalvageValue:          req.SalvageValue,
		BookValue:             req.PurchaseCost,
		DepreciationMethod:    method,
		UsefulLifeMonths:      req.UsefulLifeMonths,
		DepreciationStartDate: req.DepreciationStartDate,
		Version:               1,
	}
	if err := asset.Validate(); err != nil {
		return nil, validationf("%s", err.Error())
	}
	asset.MonthlyDepreciation = MonthlyDepreciation(asset)
	if req.DepreciationStartDate != nil && asset.UsefulLifeMonths > 0 {
		next := nextPeriod(*req.DepreciationStartDate, req.DepreciationStartDate.Day())
		asset.NextDepreciationDate = &next
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewAssetRepository(tx).Create(ctx, asset); err != nil {
			return fmt.Errorf("failed to create asset: %w", err)
		}
		return repository.NewAssetHistoryRepository(tx).Save(ctx, &model.AssetHistoryModel{
			ID:          uuid.New().String(),
			AssetID:     asset.ID,
			Action:      model.HistoryCreated,
			ToStatus:    model.AssetAvailable,
			PerformedBy: actor.EmployeeID,
			Amount:      decimal.NewNullDecimal(asset.PurchaseCost),
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "create", EntityAsset, asset.ID, map[string]interface{}{
		"item_code": asset.ItemCode,
		"cost":      asset.PurchaseCost.StringFixed(2),
	})
	return asset, nil
}

// Get 查询资产
func (s *assetService) Get(ctx context.Context, actor auth.Actor, id string) (*model.AssetModel, error) {
	asset, err := repository.NewAssetRepository(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "asset", id)
	}
	if !actor.CanActOnUnit(asset.BusinessUnitID) {
		return nil, unauthorizedf("asset %s belongs to another business unit", id)
	}
	return asset, nil
}

// History 查询资产履历
func (s *assetService) History(ctx context.Context, actor auth.Actor, id string) ([]*model.AssetHistoryModel, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return repository.NewAssetHistoryRepository(s.db).FindByAssetID(ctx, id)
}

// DeployAssets 创建待会计审批的领用记录, 任一资产不满足条件则全部不处理
func (s *assetService) DeployAssets(ctx context.Context, actor auth.Actor, req *DeployAssetsRequest) ([]*model.AssetDeploymentModel, error) {
	if !actor.Has(auth.CapAssetManage) {
		return nil, unauthorizedf("not authorized to deploy assets")
	}
	ids := uniqueIDs(req.AssetIDs)
	if len(ids) == 0 {
		return nil, validationf("at least one asset is required")
	}
	transmittal := strings.TrimSpace(req.TransmittalNo)
	if transmittal == "" {
		return nil, validationf("transmittal number is required")
	}

	// 1. 领用人必须存在
	if _, err := repository.NewUserRepository(s.db).FindByEmployeeID(ctx, req.EmployeeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationf("unknown employee %s", req.EmployeeID)
		}
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}

	var deployments []*model.AssetDeploymentModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 2. 校验每个资产
		assets, err := repository.NewAssetRepository(tx).FindByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load assets: %w", err)
		}
		deploymentRepo := repository.NewAssetDeploymentRepository(tx)
		active, err := deploymentRepo.FindActiveByAssetIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load deployments: %w", err)
		}

		reasons := make(map[string]string)
		for _, id := range ids {
			asset, ok := assets[id]
			switch {
			case !ok:
				reasons[id] = "not found"
			case !actor.CanActOnUnit(asset.BusinessUnitID):
				reasons[id] = "belongs to another business unit"
			case asset.Status != model.AssetAvailable:
				reasons[id] = "status is " + string(asset.Status)
			case active[id] != nil:
				reasons[id] = "already has an active deployment"
			}
		}
		if len(reasons) > 0 {
			return &PartialStateError{Reasons: reasons}
		}

		// 3. 写入领用记录
		now := s.now()
		for _, id := range ids {
			deployments = append(deployments, &model.AssetDeploymentModel{
				ID:                 uuid.New().String(),
				AssetID:            id,
				EmployeeID:         req.EmployeeID,
				BusinessUnitID:     assets[id].BusinessUnitID,
				TransmittalNo:      transmittal,
				Status:             model.DeploymentPendingAccounting,
				ExpectedReturnDate: req.ExpectedReturnDate,
				Notes:              req.Notes,
				CreatedBy:          actor.EmployeeID,
				CreatedAt:          now,
				UpdatedAt:          now,
			})
		}
		return deploymentRepo.Create(ctx, deployments)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "deploy", EntityAsset, transmittal, map[string]interface{}{
		"asset_ids":   ids,
		"employee_id": req.EmployeeID,
	})
	s.invalidate(ctx, unitsOf(deployments)...)
	return deployments, nil
}

// ApproveDeployment 会计审批交接单, 资产转为已领用
func (s *assetService) ApproveDeployment(ctx context.Context, actor auth.Actor, transmittalNo string) ([]*model.AssetDeploymentModel, error) {
	if !actor.Has(auth.CapAssetAccounting) {
		return nil, unauthorizedf("not authorized to approve deployments")
	}

	var deployments []*model.AssetDeploymentModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deploymentRepo := repository.NewAssetDeploymentRepository(tx)
		assetRepo := repository.NewAssetRepository(tx)

		var err error
		deployments, err = deploymentRepo.FindByTransmittal(ctx, transmittalNo, model.DeploymentPendingAccounting)
		if err != nil {
			return fmt.Errorf("failed to load deployments: %w", err)
		}
		if len(deployments) == 0 {
			return fmt.Errorf("%w: pending transmittal %s", ErrNotFound, transmittalNo)
		}

		ids := make([]string, 0, len(deployments))
		for _, d := range deployments {
			ids = append(ids, d.AssetID)
		}
		assets, err := assetRepo.FindByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load assets: %w", err)
		}

		reasons := make(map[string]string)
		for _, d := range deployments {
			asset, ok := assets[d.AssetID]
			switch {
			case !ok:
				reasons[d.AssetID] = "not found"
			case !actor.CanActOnUnit(d.BusinessUnitID):
				reasons[d.AssetID] = "belongs to another business unit"
			case asset.Status != model.AssetAvailable:
				reasons[d.AssetID] = "status is " + string(asset.Status)
			}
		}
		if len(reasons) > 0 {
			return &PartialStateError{Reasons: reasons}
		}

		now := s.now()
		histories := make([]*model.AssetHistoryModel, 0, len(deployments))
		for _, d := range deployments {
			rows, err := deploymentRepo.Update(ctx, d.ID, model.DeploymentPendingAccounting, map[string]interface{}{
				"status":                 model.DeploymentDeployed,
				"deployed_date":          now,
				"accounting_approved_by": actor.EmployeeID,
				"accounting_approved_at": now,
			})
			if err != nil {
				return fmt.Errorf("failed to update deployment: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("%w: deployment %s", ErrConflict, d.ID)
			}

			asset := assets[d.AssetID]
			rows, err = assetRepo.UpdateWithVersion(ctx, asset.ID, asset.Version, map[string]interface{}{
				"status":              model.AssetDeployed,
				"current_assignee_id": d.EmployeeID,
			})
			if err != nil {
				return fmt.Errorf("failed to update asset: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("%w: asset %s", ErrConflict, asset.ID)
			}

			employee := d.EmployeeID
			histories = append(histories, &model.AssetHistoryModel{
				ID:          uuid.New().String(),
				AssetID:     asset.ID,
				Action:      model.HistoryDeployed,
				FromStatus:  asset.Status,
				ToStatus:    model.AssetDeployed,
				EmployeeID:  &employee,
				PerformedBy: actor.EmployeeID,
				Notes:       "transmittal " + transmittalNo,
				CreatedAt:   now,
			})
			d.Status = model.DeploymentDeployed
			d.DeployedDate = &now
			d.AccountingApprovedBy = &actor.EmployeeID
			d.AccountingApprovedAt = &now
		}
		return repository.NewAssetHistoryRepository(tx).Save(ctx, histories...)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "approve_deployment", EntityAsset, transmittalNo, map[string]interface{}{
		"assets": len(deployments),
	})
	s.invalidate(ctx, unitsOf(deployments)...)
	return deployments, nil
}

// ReturnAssets 批量归还, 要么全部成功要么全部不变
func (s *assetService) ReturnAssets(ctx context.Context, actor auth.Actor, req *ReturnAssetsRequest) (int, error) {
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return 0, unauthorizedf("business unit %s is out of scope", req.BusinessUnitID)
	}
	if !actor.Has(auth.CapAssetManage) && !actor.Has(auth.CapAssetAccounting) {
		return 0, unauthorizedf("not authorized to return assets")
	}
	ids := uniqueIDs(req.AssetIDs)
	if len(ids) == 0 {
		return 0, validationf("at least one asset is required")
	}
	returned := req.ReturnedDate
	if returned.IsZero() {
		returned = s.now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assetRepo := repository.NewAssetRepository(tx)
		deploymentRepo := repository.NewAssetDeploymentRepository(tx)

		// 1. 校验全部资产, 收集所有不满足条件的记录
		assets, err := assetRepo.FindByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load assets: %w", err)
		}
		active, err := deploymentRepo.FindActiveByAssetIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load deployments: %w", err)
		}

		reasons := make(map[string]string)
		for _, id := range ids {
			asset, ok := assets[id]
			d := active[id]
			switch {
			case !ok:
				reasons[id] = "not found"
			case asset.BusinessUnitID != req.BusinessUnitID:
				reasons[id] = "belongs to another business unit"
			case asset.Status != model.AssetDeployed:
				reasons[id] = "status is " + string(asset.Status)
			case d == nil || d.Status != model.DeploymentDeployed:
				reasons[id] = "no active deployment"
			}
		}
		if len(reasons) > 0 {
			return &PartialStateError{Reasons: reasons}
		}

		// 2. 关闭领用记录并恢复资产
		now := s.now()
		histories := make([]*model.AssetHistoryModel, 0, len(ids))
		for _, id := range ids {
			asset, d := assets[id], active[id]
			rows, err := deploymentRepo.Update(ctx, d.ID, model.DeploymentDeployed, map[string]interface{}{
				"status":        model.DeploymentReturned,
				"returned_date": returned,
				"return_notes":  req.Notes,
			})
			if err != nil {
				return fmt.Errorf("failed to update deployment: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("%w: deployment %s", ErrConflict, d.ID)
			}

			rows, err = assetRepo.UpdateWithVersion(ctx, id, asset.Version, map[string]interface{}{
				"status":              model.AssetAvailable,
				"current_assignee_id": nil,
			})
			if err != nil {
				return fmt.Errorf("failed to update asset: %w", err)
			}
			if rows == 0 {
				return fmt.Errorf("%w: asset %s", ErrConflict, id)
			}

			employee := d.EmployeeID
			histories = append(histories, &model.AssetHistoryModel{
				ID:          uuid.New().String(),
				AssetID:     id,
				Action:      model.HistoryReturned,
				FromStatus:  model.AssetDeployed,
				ToStatus:    model.AssetAvailable,
				EmployeeID:  &employee,
				PerformedBy: actor.EmployeeID,
				Notes:       req.Notes,
				CreatedAt:   now,
			})
		}
		return repository.NewAssetHistoryRepository(tx).Save(ctx, histories...)
	})
	if err != nil {
		if errors.Is(err, ErrPartialState) {
			metrics.RecordAssetReturn("rejected", len(ids))
		}
		return 0, err
	}

	metrics.RecordAssetReturn("returned", len(ids))
	s.record(ctx, actor.EmployeeID, "return", EntityAsset, strings.Join(ids, ","), map[string]interface{}{
		"business_unit_id": req.BusinessUnitID,
		"returned_date":    returned.Format("2006-01-02"),
		"notes":            req.Notes,
	})
	s.invalidate(ctx, req.BusinessUnitID)
	return len(ids), nil
}

// ChangeStatus 按生命周期表变更资产状态, 离开 DEPLOYED 时关闭领用记录
func (s *assetService) ChangeStatus(ctx context.Context, actor auth.Actor, id string, target model.AssetStatus, notes string) (*model.AssetModel, error) {
	if !actor.Has(auth.CapAssetManage) {
		return nil, unauthorizedf("not authorized to change asset status")
	}
	assetRepo := repository.NewAssetRepository(s.db)
	asset, err := assetRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "asset", id)
	}
	if !actor.CanActOnUnit(asset.BusinessUnitID) {
		return nil, unauthorizedf("asset %s belongs to another business unit", id)
	}
	if !CanTransitionAsset(asset.Status, target) {
		return nil, invalidStatef("asset cannot move from %s to %s", asset.Status, target)
	}

	from := asset.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		updates := map[string]interface{}{"status": target}
		if from == model.AssetDeployed {
			updates["current_assignee_id"] = nil
			active, err := repository.NewAssetDeploymentRepository(tx).FindActiveByAssetIDs(ctx, []string{id})
			if err != nil {
				return fmt.Errorf("failed to load deployment: %w", err)
			}
			if d := active[id]; d != nil {
				if _, err := repository.NewAssetDeploymentRepository(tx).Update(ctx, d.ID, d.Status, map[string]interface{}{
					"status":        model.DeploymentReturned,
					"returned_date": now,
					"return_notes":  notes,
				}); err != nil {
					return fmt.Errorf("failed to close deployment: %w", err)
				}
			}
		}

		rows, err := repository.NewAssetRepository(tx).UpdateWithVersion(ctx, id, asset.Version, updates)
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: asset %s", ErrConflict, id)
		}
		return repository.NewAssetHistoryRepository(tx).Save(ctx, &model.AssetHistoryModel{
			ID:          uuid.New().String(),
			AssetID:     id,
			Action:      historyActionFor(from, target),
			FromStatus:  from,
			ToStatus:    target,
			PerformedBy: actor.EmployeeID,
			Notes:       notes,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "change_status", EntityAsset, id, map[string]interface{}{
		"from": from,
		"to":   target,
	})
	s.invalidate(ctx, asset.BusinessUnitID)
	return assetRepo.FindByID(ctx, id)
}

// uniqueIDs 去空去重, 保持原有顺序
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func unitsOf(deployments []*model.AssetDeploymentModel) []string {
	out := make([]string, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, d.BusinessUnitID)
	}
	return out
}

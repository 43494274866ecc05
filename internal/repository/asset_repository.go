package repository

import (
	"context"
	"time"

	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/gorm"
)

// AssetRepository 资产仓储接口
type AssetRepository interface {
	Create(ctx context.Context, asset *model.AssetModel) error
	FindByID(ctx context.Context, id string) (*model.AssetModel, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*model.AssetModel, error)
	UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error)
	FindDueForDepreciation(ctx context.Context, asOf time.Time, limit int) ([]*model.AssetModel, error)
	FindInScope(ctx context.Context, businessUnitID string, location string) ([]*model.AssetModel, error)
	Count(ctx context.Context, scopes ...Scope) (int64, error)
}

// assetRepository 资产仓储实现
type assetRepository struct {
	db *gorm.DB
}

// NewAssetRepository 创建资产仓储
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

// Create 创建资产
func (r *assetRepository) Create(ctx context.Context, asset *model.AssetModel) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(asset).Error
}

// FindByID 根据 ID 查找资产
func (r *assetRepository) FindByID(ctx context.Context, id string) (*model.AssetModel, error) {
	var asset model.AssetModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindByIDs 批量查找资产
func (r *assetRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.AssetModel, error) {
	out := make(map[string]*model.AssetModel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var assets []*model.AssetModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&assets).Error; err != nil {
		return nil, err
	}
	for _, a := range assets {
		out[a.ID] = a
	}
	return out, nil
}

// UpdateWithVersion 按版本号条件更新资产
func (r *assetRepository) UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&model.AssetModel{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// FindDueForDepreciation 查找到期需要计提折旧的资产
func (r *assetRepository) FindDueForDepreciation(ctx context.Context, asOf time.Time, limit int) ([]*model.AssetModel, error) {
	var assets []*model.AssetModel
	query := r.db.WithContext(ctx).Scopes(DepreciationDue(asOf)).Order("next_depreciation_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&assets).Error
	return assets, err
}

// FindInScope 查找业务单元内(可选按位置)未处置的资产
func (r *assetRepository) FindInScope(ctx context.Context, businessUnitID string, location string) ([]*model.AssetModel, error) {
	var assets []*model.AssetModel
	query := r.db.WithContext(ctx).
		Where("business_unit_id = ? AND status <> ?", businessUnitID, model.AssetDisposed)
	if location != "" {
		query = query.Where("LOWER(location) = LOWER(?)", location)
	}
	err := query.Order("item_code ASC").Find(&assets).Error
	return assets, err
}

// Count 按范围计数
func (r *assetRepository) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.AssetModel{}).Scopes(scopes...).Count(&n).Error
	return n, err
}

// DepreciationDue 到期计提折旧的资产范围
func DepreciationDue(asOf time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_fully_depreciated = ? AND status NOT IN ? AND next_depreciation_date IS NOT NULL AND next_depreciation_date <= ?",
			false, []model.AssetStatus{model.AssetDisposed, model.AssetLost}, asOf)
	}
}

// AssetDeploymentRepository 资产领用仓储接口
type AssetDeploymentRepository interface {
	Create(ctx context.Context, deployments []*model.AssetDeploymentModel) error
	FindActiveByAssetIDs(ctx context.Context, assetIDs []string) (map[string]*model.AssetDeploymentModel, error)
	FindByTransmittal(ctx context.Context, transmittalNo string, status model.DeploymentStatus) ([]*model.AssetDeploymentModel, error)
	Update(ctx context.Context, id string, expect model.DeploymentStatus, updates map[string]interface{}) (int64, error)
	ListBetween(ctx context.Context, businessUnitID string, from, to time.Time) ([]*model.AssetDeploymentModel, error)
	Count(ctx context.Context, scopes ...Scope) (int64, error)
}

// assetDeploymentRepository 资产领用仓储实现
type assetDeploymentRepository struct {
	db *gorm.DB
}

// NewAssetDeploymentRepository 创建资产领用仓储
func NewAssetDeploymentRepository(db *gorm.DB) AssetDeploymentRepository {
	return &assetDeploymentRepository{db: db}
}

// Create 批量创建领用记录
func (r *assetDeploymentRepository) Create(ctx context.Context, deployments []*model.AssetDeploymentModel) error {
	if len(deployments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&deployments).Error
}

// FindActiveByAssetIDs 查找资产的未归还领用记录
func (r *assetDeploymentRepository) FindActiveByAssetIDs(ctx context.Context, assetIDs []string) (map[string]*model.AssetDeploymentModel, error) {
	out := make(map[string]*model.AssetDeploymentModel, len(assetIDs))
	if len(assetIDs) == 0 {
		return out, nil
	}
	var list []*model.AssetDeploymentModel
	err := r.db.WithContext(ctx).
		Where("asset_id IN ? AND status <> ?", assetIDs, model.DeploymentReturned).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		out[d.AssetID] = d
	}
	return out, nil
}

// FindByTransmittal 根据交接单号与状态查找
func (r *assetDeploymentRepository) FindByTransmittal(ctx context.Context, transmittalNo string, status model.DeploymentStatus) ([]*model.AssetDeploymentModel, error) {
	var list []*model.AssetDeploymentModel
	err := r.db.WithContext(ctx).
		Where("transmittal_no = ? AND status = ?", transmittalNo, status).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

// Update 在状态符合预期时更新领用记录
func (r *assetDeploymentRepository) Update(ctx context.Context, id string, expect model.DeploymentStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.AssetDeploymentModel{}).
		Where("id = ? AND status = ?", id, expect).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListBetween 查询时间范围内的领用记录(含资产)
func (r *assetDeploymentRepository) ListBetween(ctx context.Context, businessUnitID string, from, to time.Time) ([]*model.AssetDeploymentModel, error) {
	var list []*model.AssetDeploymentModel
	query := r.db.WithContext(ctx).Preload("Asset").
		Where("created_at >= ? AND created_at < ?", from, to)
	if businessUnitID != "" {
		query = query.Where("business_unit_id = ?", businessUnitID)
	}
	err := query.Order("created_at ASC").Find(&list).Error
	return list, err
}

// Count 按范围计数
func (r *assetDeploymentRepository) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.AssetDeploymentModel{}).Scopes(scopes...).Count(&n).Error
	return n, err
}

// AssetHistoryRepository 资产履历仓储接口
type AssetHistoryRepository interface {
	Save(ctx context.Context, histories ...*model.AssetHistoryModel) error
	FindByAssetID(ctx context.Context, assetID string) ([]*model.AssetHistoryModel, error)
}

// assetHistoryRepository 资产履历仓储实现
type assetHistoryRepository struct {
	db *gorm.DB
}

// NewAssetHistoryRepository 创建资产履历仓储
func NewAssetHistoryRepository(db *gorm.DB) AssetHistoryRepository {
	return &assetHistoryRepository{db: db}
}

// Save 保存资产履历
func (r *assetHistoryRepository) Save(ctx context.Context, histories ...*model.AssetHistoryModel) error {
	if len(histories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&histories).Error
}

// FindByAssetID 查询资产履历, 按时间正序
func (r *assetHistoryRepository) FindByAssetID(ctx context.Context, assetID string) ([]*model.AssetHistoryModel, error) {
	var list []*model.AssetHistoryModel
	err := r.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("created_at ASC").Find(&list).Error
	return list, err
}

package repository

import (
	"context"

	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/gorm"
)

// Scope 查询范围
type Scope = func(*gorm.DB) *gorm.DB

// MaterialRequestRepository 物料申请仓储接口
type MaterialRequestRepository interface {
	Create(ctx context.Context, mr *model.MaterialRequestModel) error
	FindByID(ctx context.Context, id string) (*model.MaterialRequestModel, error)
	FindWithItems(ctx context.Context, id string) (*model.MaterialRequestModel, error)
	CountItems(ctx context.Context, id string) (int, error)
	CountDocumentPrefix(ctx context.Context, prefix string) (int64, error)
	// UpdateWithVersion 按版本号条件更新, 返回受影响行数
	UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error)
	List(ctx context.Context, scopes ...Scope) ([]*model.MaterialRequestModel, error)
	Count(ctx context.Context, scopes ...Scope) (int64, error)
}

// materialRequestRepository 物料申请仓储实现
type materialRequestRepository struct {
	db *gorm.DB
}

// NewMaterialRequestRepository 创建物料申请仓储
func NewMaterialRequestRepository(db *gorm.DB) MaterialRequestRepository {
	return &materialRequestRepository{db: db}
}

// Create 创建物料申请及其明细
func (r *materialRequestRepository) Create(ctx context.Context, mr *model.MaterialRequestModel) error {
	if err := mr.Validate(); err != nil {
		return err
	}
	// 明细较多时分批插入
	return r.db.WithContext(ctx).Session(&gorm.Session{CreateBatchSize: 100}).Create(mr).Error
}

// FindByID 根据 ID 查找
func (r *materialRequestRepository) FindByID(ctx context.Context, id string) (*model.MaterialRequestModel, error) {
	var mr model.MaterialRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&mr).Error; err != nil {
		return nil, err
	}
	return &mr, nil
}

// FindWithItems 根据 ID 查找并加载明细
func (r *materialRequestRepository) FindWithItems(ctx context.Context, id string) (*model.MaterialRequestModel, error) {
	var mr model.MaterialRequestModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("id = ?", id).
		First(&mr).Error
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

// CountItems 统计明细行数
func (r *materialRequestRepository) CountItems(ctx context.Context, id string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.MaterialRequestItemModel{}).
		Where("material_request_id = ?", id).
		Count(&n).Error
	return int(n), err
}

// CountDocumentPrefix 统计指定前缀的单据数, 用于生成流水号
func (r *materialRequestRepository) CountDocumentPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.MaterialRequestModel{}).
		Where("document_no LIKE ?", prefix+"%").
		Count(&n).Error
	return n, err
}

// UpdateWithVersion 按版本号条件更新
func (r *materialRequestRepository) UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&model.MaterialRequestModel{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// List 按范围查询, 按创建时间倒序
func (r *materialRequestRepository) List(ctx context.Context, scopes ...Scope) ([]*model.MaterialRequestModel, error) {
	var list []*model.MaterialRequestModel
	err := r.db.WithContext(ctx).Model(&model.MaterialRequestModel{}).
		Scopes(scopes...).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// Count 按范围计数
func (r *materialRequestRepository) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.MaterialRequestModel{}).Scopes(scopes...).Count(&n).Error
	return n, err
}

package repository

import (
	"context"

	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/gorm"
)

// ItemTally 按状态统计的盘点明细数
type ItemTally struct {
	Status model.VerificationItemStatus
	Total  int64
}

// VerificationRepository 盘点仓储接口
type VerificationRepository interface {
	Create(ctx context.Context, v *model.InventoryVerificationModel, items []*model.VerificationItemModel) error
	FindByID(ctx context.Context, id string) (*model.InventoryVerificationModel, error)
	FindItem(ctx context.Context, verificationID, assetID string) (*model.VerificationItemModel, error)
	ListItems(ctx context.Context, verificationID string) ([]*model.VerificationItemModel, error)
	// ResolveItem 仅当明细仍为 PENDING 时更新, 返回受影响行数
	ResolveItem(ctx context.Context, itemID string, updates map[string]interface{}) (int64, error)
	// ResolveRemaining 将剩余 PENDING 明细批量更新
	ResolveRemaining(ctx context.Context, verificationID string, updates map[string]interface{}) (int64, error)
	// IncrementCounters 原子累加计数器
	IncrementCounters(ctx context.Context, verificationID string, deltas map[string]int) error
	UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error)
	UpdateStatus(ctx context.Context, id string, from []model.VerificationStatus, updates map[string]interface{}) (int64, error)
	TallyItems(ctx context.Context, verificationID string) ([]ItemTally, error)
	Count(ctx context.Context, scopes ...Scope) (int64, error)
}

// verificationRepository 盘点仓储实现
type verificationRepository struct {
	db *gorm.DB
}

// NewVerificationRepository 创建盘点仓储
func NewVerificationRepository(db *gorm.DB) VerificationRepository {
	return &verificationRepository{db: db}
}

// Create 创建盘点活动与明细快照
func (r *verificationRepository) Create(ctx context.Context, v *model.InventoryVerificationModel, items []*model.VerificationItemModel) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(v).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.Session(&gorm.Session{CreateBatchSize: 200}).Create(&items).Error
}

// FindByID 根据 ID 查找盘点活动
func (r *verificationRepository) FindByID(ctx context.Context, id string) (*model.InventoryVerificationModel, error) {
	var v model.InventoryVerificationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindItem 查找盘点明细
func (r *verificationRepository) FindItem(ctx context.Context, verificationID, assetID string) (*model.VerificationItemModel, error) {
	var item model.VerificationItemModel
	err := r.db.WithContext(ctx).
		Where("verification_id = ? AND asset_id = ?", verificationID, assetID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems 列出盘点明细
func (r *verificationRepository) ListItems(ctx context.Context, verificationID string) ([]*model.VerificationItemModel, error) {
	var items []*model.VerificationItemModel
	err := r.db.WithContext(ctx).
		Where("verification_id = ?", verificationID).
		Order("expected_item_code ASC").
		Find(&items).Error
	return items, err
}

// ResolveItem 更新单条 PENDING 明细
func (r *verificationRepository) ResolveItem(ctx context.Context, itemID string, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.VerificationItemModel{}).
		Where("id = ? AND status = ?", itemID, model.ItemPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ResolveRemaining 批量更新剩余 PENDING 明细
func (r *verificationRepository) ResolveRemaining(ctx context.Context, verificationID string, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.VerificationItemModel{}).
		Where("verification_id = ? AND status = ?", verificationID, model.ItemPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// IncrementCounters 原子累加计数器
func (r *verificationRepository) IncrementCounters(ctx context.Context, verificationID string, deltas map[string]int) error {
	updates := make(map[string]interface{}, len(deltas))
	for column, delta := range deltas {
		if delta == 0 {
			continue
		}
		updates[column] = gorm.Expr(column+" + ?", delta)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.InventoryVerificationModel{}).
		Where("id = ?", verificationID).
		Updates(updates).Error
}

// UpdateWithVersion 按版本号条件更新
func (r *verificationRepository) UpdateWithVersion(ctx context.Context, id string, version int, updates map[string]interface{}) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&model.InventoryVerificationModel{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdateStatus 在当前状态属于 from 时更新
func (r *verificationRepository) UpdateStatus(ctx context.Context, id string, from []model.VerificationStatus, updates map[string]interface{}) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&model.InventoryVerificationModel{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// TallyItems 按状态统计明细
func (r *verificationRepository) TallyItems(ctx context.Context, verificationID string) ([]ItemTally, error) {
	var tallies []ItemTally
	err := r.db.WithContext(ctx).Model(&model.VerificationItemModel{}).
		Select("status, COUNT(*) AS total").
		Where("verification_id = ?", verificationID).
		Group("status").
		Scan(&tallies).Error
	return tallies, err
}

// Count 按范围计数
func (r *verificationRepository) Count(ctx context.Context, scopes ...Scope) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.InventoryVerificationModel{}).Scopes(scopes...).Count(&n).Error
	return n, err
}

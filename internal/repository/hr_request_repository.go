package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/rdrealty-lms/internal/model"
	"gorm.io/gorm"
)

// HRRequestKind 人事申请类别
type HRRequestKind string

const (
	KindLeave    HRRequestKind = "leave_request"
	KindOvertime HRRequestKind = "overtime_request"
)

// modelFor 返回类别对应的模型
func (k HRRequestKind) modelFor() (interface{}, error) {
	switch k {
	case KindLeave:
		return &model.LeaveRequestModel{}, nil
	case KindOvertime:
		return &model.OvertimeRequestModel{}, nil
	default:
		return nil, fmt.Errorf("unknown hr request kind: %s", k)
	}
}

// StagedRecord 两级审批记录的公共部分
type StagedRecord struct {
	ID string `json:"id"`
	model.StagedApproval
}

// HRRequestRepository 请假/加班仓储接口
type HRRequestRepository interface {
	CreateLeave(ctx context.Context, req *model.LeaveRequestModel) error
	CreateOvertime(ctx context.Context, req *model.OvertimeRequestModel) error
	FindStaged(ctx context.Context, kind HRRequestKind, id string) (*StagedRecord, error)
	UpdateWithVersion(ctx context.Context, kind HRRequestKind, id string, version int, updates map[string]interface{}) (int64, error)
	ListLeave(ctx context.Context, scopes ...Scope) ([]*model.LeaveRequestModel, error)
	ListOvertime(ctx context.Context, scopes ...Scope) ([]*model.OvertimeRequestModel, error)
	ListLeaveBetween(ctx context.Context, businessUnitID string, from, to time.Time) ([]*model.LeaveRequestModel, error)
	Count(ctx context.Context, kind HRRequestKind, scopes ...Scope) (int64, error)
}

// hrRequestRepository 请假/加班仓储实现
type hrRequestRepository struct {
	db *gorm.DB
}

// NewHRRequestRepository 创建请假/加班仓储
func NewHRRequestRepository(db *gorm.DB) HRRequestRepository {
	return &hrRequestRepository{db: db}
}

// CreateLeave 创建请假申请
func (r *hrRequestRepository) CreateLeave(ctx context.Context, req *model.LeaveRequestModel) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// CreateOvertime 创建加班申请
func (r *hrRequestRepository) CreateOvertime(ctx context.Context, req *model.OvertimeRequestModel) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// FindStaged 读取审批公共字段
func (r *hrRequestRepository) FindStaged(ctx context.Context, kind HRRequestKind, id string) (*StagedRecord, error) {
	db := r.db.WithContext(ctx)
	switch kind {
	case KindLeave:
		var m model.LeaveRequestModel
		if err := db.Where("id = ?", id).First(&m).Error; err != nil {
			return nil, err
		}
		return &StagedRecord{ID: m.ID, StagedApproval: m.StagedApproval}, nil
	case KindOvertime:
		var m model.OvertimeRequestModel
		if err := db.Where("id = ?", id).First(&m).Error; err != nil {
			return nil, err
		}
		return &StagedRecord{ID: m.ID, StagedApproval: m.StagedApproval}, nil
	default:
		return nil, fmt.Errorf("unknown hr request kind: %s", kind)
	}
}

// UpdateWithVersion 按版本号条件更新
func (r *hrRequestRepository) UpdateWithVersion(ctx context.Context, kind HRRequestKind, id string, version int, updates map[string]interface{}) (int64, error) {
	m, err := kind.modelFor()
	if err != nil {
		return 0, err
	}
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(m).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListLeave 按范围查询请假申请
func (r *hrRequestRepository) ListLeave(ctx context.Context, scopes ...Scope) ([]*model.LeaveRequestModel, error) {
	var list []*model.LeaveRequestModel
	err := r.db.WithContext(ctx).Model(&model.LeaveRequestModel{}).
		Scopes(scopes...).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// ListOvertime 按范围查询加班申请
func (r *hrRequestRepository) ListOvertime(ctx context.Context, scopes ...Scope) ([]*model.OvertimeRequestModel, error) {
	var list []*model.OvertimeRequestModel
	err := r.db.WithContext(ctx).Model(&model.OvertimeRequestModel{}).
		Scopes(scopes...).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// ListLeaveBetween 查询开始日期在范围内的请假申请
func (r *hrRequestRepository) ListLeaveBetween(ctx context.Context, businessUnitID string, from, to time.Time) ([]*model.LeaveRequestModel, error) {
	var list []*model.LeaveRequestModel
	query := r.db.WithContext(ctx).Where("start_date >= ? AND start_date < ?", from, to)
	if businessUnitID != "" {
		query = query.Where("business_unit_id = ?", businessUnitID)
	}
	err := query.Order("start_date ASC").Find(&list).Error
	return list, err
}

// Count 按范围计数
func (r *hrRequestRepository) Count(ctx context.Context, kind HRRequestKind, scopes ...Scope) (int64, error) {
	m, err := kind.modelFor()
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithContext(ctx).Model(m).Scopes(scopes...).Count(&n).Error
	return n, err
}

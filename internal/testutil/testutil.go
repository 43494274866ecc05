// Package testutil 提供测试用的内存数据库与种子数据
package testutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/database"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	dbSeq      int64
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// NewTestDB 为每个测试创建独立的 sqlite 内存库并执行生产迁移
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("%s_%d", unsafeName.ReplaceAllString(t.Name(), "_"), atomic.AddInt64(&dbSeq, 1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// 单连接保证所有查询看到同一个内存库
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedBusinessUnit 插入业务单元
func SeedBusinessUnit(t *testing.T, db *gorm.DB, id, code string) *model.BusinessUnitModel {
	t.Helper()
	bu := &model.BusinessUnitModel{ID: id, Code: code, Name: code + " Business Unit"}
	if err := db.Create(bu).Error; err != nil {
		t.Fatalf("failed to seed business unit: %v", err)
	}
	return bu
}

// UserOption 用户种子选项
type UserOption func(*model.UserModel)

// WithApprover 设置直属主管
func WithApprover(employeeID string) UserOption {
	return func(u *model.UserModel) { u.ApproverID = &employeeID }
}

// WithRDHMRS 标记为 RDH/MRS 申请人
func WithRDHMRS() UserOption {
	return func(u *model.UserModel) { u.IsRDHMRS = true }
}

// WithPermissions 设置权限数组
func WithPermissions(keys ...string) UserOption {
	return func(u *model.UserModel) {
		raw, _ := json.Marshal(keys)
		u.Permissions = raw
	}
}

// SeedUser 插入员工
func SeedUser(t *testing.T, db *gorm.DB, employeeID string, role auth.Role, buID string, opts ...UserOption) *model.UserModel {
	t.Helper()
	u := &model.UserModel{
		ID:             uuid.New().String(),
		EmployeeID:     employeeID,
		Name:           "Employee " + employeeID,
		Role:           string(role),
		BusinessUnitID: buID,
		IsActive:       true,
	}
	for _, opt := range opts {
		opt(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", employeeID, err)
	}
	return u
}

// SeedAsset 插入可用资产
func SeedAsset(t *testing.T, db *gorm.DB, itemCode, buID, location string) *model.AssetModel {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &model.AssetModel{
		ID:                    uuid.New().String(),
		ItemCode:              itemCode,
		Description:           "Asset " + itemCode,
		BusinessUnitID:        buID,
		Location:              location,
		Status:                model.AssetAvailable,
		PurchaseCost:          decimal.NewFromInt(12000),
		SalvageValue:          decimal.NewFromInt(0),
		BookValue:             decimal.NewFromInt(12000),
		DepreciationMethod:    model.DepreciationStraightLine,
		UsefulLifeMonths:      12,
		MonthlyDepreciation:   decimal.NewFromInt(1000),
		DepreciationStartDate: &start,
		Version:               1,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to seed asset %s: %v", itemCode, err)
	}
	return a
}

// Actor 构造测试用操作者
func Actor(employeeID string, role auth.Role, buID string, caps ...auth.Capability) auth.Actor {
	set := make(map[auth.Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return auth.Actor{
		EmployeeID:     employeeID,
		Name:           "Employee " + employeeID,
		Role:           role,
		BusinessUnitID: buID,
		Capabilities:   set,
	}
}

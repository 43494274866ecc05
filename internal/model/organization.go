package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// BusinessUnitModel 业务单元
type BusinessUnitModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Code      string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (BusinessUnitModel) TableName() string {
	return "business_units"
}

// DepartmentModel 部门
type DepartmentModel struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BusinessUnitID string    `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	Code           string    `gorm:"type:varchar(32);not null" json:"code"`
	Name           string    `gorm:"type:varchar(128);not null" json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (DepartmentModel) TableName() string {
	return "departments"
}

// UserModel 员工账号
type UserModel struct {
	ID             string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	EmployeeID     string  `gorm:"type:varchar(32);not null;uniqueIndex" json:"employee_id"`
	Name           string  `gorm:"type:varchar(128);not null" json:"name"`
	Role           string  `gorm:"type:varchar(16);not null;index" json:"role"`
	ApproverID     *string `gorm:"type:varchar(32);index" json:"approver_id,omitempty"` // 直属主管员工编号
	BusinessUnitID string  `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	DepartmentID   *string `gorm:"type:varchar(64);index" json:"department_id,omitempty"`
	IsRDHMRS       bool    `gorm:"column:is_rdh_mrs;not null;default:false" json:"is_rdh_mrs"`
	// Permissions 能力键的 JSON 数组, 例如 ["budget_approve"]
	Permissions datatypes.JSON `json:"permissions"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (UserModel) TableName() string {
	return "users"
}

// PermissionKeys 解析权限数组
func (u *UserModel) PermissionKeys() []string {
	if len(u.Permissions) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(u.Permissions, &keys); err != nil {
		return nil
	}
	return keys
}

// Validate 验证用户模型
func (u *UserModel) Validate() error {
	if u.EmployeeID == "" {
		return errors.New("employee ID is required")
	}
	if u.Name == "" {
		return errors.New("name is required")
	}
	if u.BusinessUnitID == "" {
		return errors.New("business unit ID is required")
	}
	return nil
}

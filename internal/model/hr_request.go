package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// HRRequestStatus 请假/加班申请状态
type HRRequestStatus string

const (
	HRPendingManager HRRequestStatus = "PENDING_MANAGER"
	HRPendingHR      HRRequestStatus = "PENDING_HR"
	HRApproved       HRRequestStatus = "APPROVED"
	HRRejected       HRRequestStatus = "REJECTED"
	HRCancelled      HRRequestStatus = "CANCELLED"
)

// IsPending 是否待审批
func (s HRRequestStatus) IsPending() bool {
	return s == HRPendingManager || s == HRPendingHR
}

// StagedApproval 主管 -> HR 两级审批字段
type StagedApproval struct {
	EmployeeID      string          `gorm:"type:varchar(32);not null;index" json:"employee_id"`
	BusinessUnitID  string          `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	Status          HRRequestStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	ManagerID       *string         `gorm:"type:varchar(32)" json:"manager_id,omitempty"`
	ManagerActionAt *time.Time      `json:"manager_action_at,omitempty"`
	ManagerComments string          `gorm:"type:text" json:"manager_comments"`
	HRID            *string         `gorm:"column:hr_id;type:varchar(32)" json:"hr_id,omitempty"`
	HRActionAt      *time.Time      `gorm:"column:hr_action_at" json:"hr_action_at,omitempty"`
	HRComments      string          `gorm:"column:hr_comments;type:text" json:"hr_comments"`
	Version         int             `gorm:"not null;default:1" json:"version"`
}

// LeaveRequestModel 请假申请
type LeaveRequestModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StagedApproval `gorm:"embedded"`
	LeaveType      string          `gorm:"type:varchar(32);not null" json:"leave_type"`
	StartDate      time.Time       `gorm:"not null;index" json:"start_date"`
	EndDate        time.Time       `gorm:"not null" json:"end_date"`
	Days           decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"days"`
	Reason         string          `gorm:"type:text" json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName 指定表名
func (LeaveRequestModel) TableName() string {
	return "leave_requests"
}

// OvertimeRequestModel 加班申请
type OvertimeRequestModel struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StagedApproval `gorm:"embedded"`
	WorkDate       time.Time       `gorm:"not null;index" json:"work_date"`
	StartTime      time.Time       `gorm:"not null" json:"start_time"`
	EndTime        time.Time       `gorm:"not null" json:"end_time"`
	Hours          decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"hours"`
	Reason         string          `gorm:"type:text" json:"reason"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName 指定表名
func (OvertimeRequestModel) TableName() string {
	return "overtime_requests"
}

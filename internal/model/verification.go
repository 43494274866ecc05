package model

import (
	"time"
)

// VerificationStatus 盘点状态
type VerificationStatus string

const (
	VerificationPlanned    VerificationStatus = "PLANNED"
	VerificationInProgress VerificationStatus = "IN_PROGRESS"
	VerificationCompleted  VerificationStatus = "COMPLETED"
	VerificationCancelled  VerificationStatus = "CANCELLED"
)

// VerificationItemStatus 盘点明细状态
type VerificationItemStatus string

const (
	ItemPending     VerificationItemStatus = "PENDING"
	ItemVerified    VerificationItemStatus = "VERIFIED"
	ItemDiscrepancy VerificationItemStatus = "DISCREPANCY"
	ItemNotFound    VerificationItemStatus = "NOT_FOUND"
)

// InventoryVerificationModel 盘点活动
// scanned_count = VERIFIED + DISCREPANCY, not_found_count 单独计数
type InventoryVerificationModel struct {
	ID               string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name             string             `gorm:"type:varchar(128);not null" json:"name"`
	BusinessUnitID   string             `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	Location         string             `gorm:"type:varchar(128)" json:"location"`
	Status           VerificationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	StartDate        *time.Time         `json:"start_date,omitempty"`
	EndDate          *time.Time         `json:"end_date,omitempty"`
	TotalAssets      int                `gorm:"not null;default:0" json:"total_assets"`
	ScannedCount     int                `gorm:"not null;default:0" json:"scanned_count"`
	VerifiedCount    int                `gorm:"not null;default:0" json:"verified_count"`
	DiscrepancyCount int                `gorm:"not null;default:0" json:"discrepancy_count"`
	NotFoundCount    int                `gorm:"not null;default:0" json:"not_found_count"`
	CreatedBy        string             `gorm:"type:varchar(32);not null" json:"created_by"`
	Version          int                `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TableName 指定表名
func (InventoryVerificationModel) TableName() string {
	return "inventory_verifications"
}

// VerificationItemModel 盘点明细, 每个资产一条
type VerificationItemModel struct {
	ID                 string                 `gorm:"primaryKey;type:varchar(64)" json:"id"`
	VerificationID     string                 `gorm:"type:varchar(64);not null;uniqueIndex:idx_verification_asset" json:"verification_id"`
	AssetID            string                 `gorm:"type:varchar(64);not null;uniqueIndex:idx_verification_asset" json:"asset_id"`
	ExpectedItemCode   string                 `gorm:"type:varchar(64);not null" json:"expected_item_code"`
	ExpectedLocation   string                 `gorm:"type:varchar(128)" json:"expected_location"`
	ExpectedAssigneeID *string                `gorm:"type:varchar(32)" json:"expected_assignee_id,omitempty"`
	Status             VerificationItemStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ScannedCode        string                 `gorm:"type:varchar(64)" json:"scanned_code"`
	ActualLocation     string                 `gorm:"type:varchar(128)" json:"actual_location"`
	ActualAssigneeID   *string                `gorm:"type:varchar(32)" json:"actual_assignee_id,omitempty"`
	DiscrepancyNotes   string                 `gorm:"type:text" json:"discrepancy_notes"`
	ScannedBy          *string                `gorm:"type:varchar(32)" json:"scanned_by,omitempty"`
	ScannedAt          *time.Time             `json:"scanned_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// TableName 指定表名
func (VerificationItemModel) TableName() string {
	return "verification_items"
}

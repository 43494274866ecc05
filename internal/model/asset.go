package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AssetStatus 资产状态
type AssetStatus string

const (
	AssetAvailable     AssetStatus = "AVAILABLE"
	AssetDeployed      AssetStatus = "DEPLOYED"
	AssetInMaintenance AssetStatus = "IN_MAINTENANCE"
	AssetDamaged       AssetStatus = "DAMAGED"
	AssetDisposed      AssetStatus = "DISPOSED"
	AssetLost          AssetStatus = "LOST"
)

// DepreciationMethod 折旧方法
type DepreciationMethod string

const (
	DepreciationStraightLine     DepreciationMethod = "STRAIGHT_LINE"
	DepreciationDecliningBalance DepreciationMethod = "DECLINING_BALANCE"
)

// AssetModel 资产
type AssetModel struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ItemCode       string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"item_code"`
	Description    string      `gorm:"type:text;not null" json:"description"`
	SerialNo       string      `gorm:"type:varchar(64)" json:"serial_no"`
	BusinessUnitID string      `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	Location       string      `gorm:"type:varchar(128)" json:"location"`
	Status         AssetStatus `gorm:"type:varchar(32);not null;index" json:"status"`

	PurchaseCost            decimal.Decimal    `gorm:"type:decimal(15,2);not null;default:0" json:"purchase_cost"`
	SalvageValue            decimal.Decimal    `gorm:"type:decimal(15,2);not null;default:0" json:"salvage_value"`
	BookValue               decimal.Decimal    `gorm:"type:decimal(15,2);not null;default:0" json:"book_value"`
	AccumulatedDepreciation decimal.Decimal    `gorm:"type:decimal(15,2);not null;default:0" json:"accumulated_depreciation"`
	DepreciationMethod      DepreciationMethod `gorm:"type:varchar(32);not null" json:"depreciation_method"`
	UsefulLifeMonths        int                `gorm:"not null;default:0" json:"useful_life_months"`
	MonthlyDepreciation     decimal.Decimal    `gorm:"type:decimal(15,2);not null;default:0" json:"monthly_depreciation"`
	DepreciationStartDate   *time.Time         `json:"depreciation_start_date,omitempty"`
	NextDepreciationDate    *time.Time         `gorm:"index" json:"next_depreciation_date,omitempty"`
	LastDepreciationDate    *time.Time         `json:"last_depreciation_date,omitempty"`
	IsFullyDepreciated      bool               `gorm:"not null;default:false" json:"is_fully_depreciated"`

	CurrentAssigneeID *string `gorm:"type:varchar(32);index" json:"current_assignee_id,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (AssetModel) TableName() string {
	return "assets"
}

// Validate 验证资产
func (a *AssetModel) Validate() error {
	if a.ItemCode == "" {
		return errors.New("item code is required")
	}
	if a.BusinessUnitID == "" {
		return errors.New("business unit ID is required")
	}
	if a.PurchaseCost.IsNegative() || a.SalvageValue.IsNegative() {
		return errors.New("cost and salvage value must not be negative")
	}
	if a.SalvageValue.GreaterThan(a.PurchaseCost) {
		return errors.New("salvage value exceeds purchase cost")
	}
	if a.UsefulLifeMonths < 0 {
		return errors.New("useful life must not be negative")
	}
	return nil
}

// DeploymentStatus 领用状态
type DeploymentStatus string

const (
	DeploymentPendingAccounting DeploymentStatus = "PENDING_ACCOUNTING_APPROVAL"
	DeploymentDeployed          DeploymentStatus = "DEPLOYED"
	DeploymentReturned          DeploymentStatus = "RETURNED"
)

// AssetDeploymentModel 资产领用记录
type AssetDeploymentModel struct {
	ID                   string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	AssetID              string           `gorm:"type:varchar(64);not null;index" json:"asset_id"`
	EmployeeID           string           `gorm:"type:varchar(32);not null;index" json:"employee_id"`
	BusinessUnitID       string           `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`
	TransmittalNo        string           `gorm:"type:varchar(64);not null;index" json:"transmittal_no"`
	Status               DeploymentStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	DeployedDate         *time.Time       `json:"deployed_date,omitempty"`
	ExpectedReturnDate   *time.Time       `json:"expected_return_date,omitempty"`
	ReturnedDate         *time.Time       `json:"returned_date,omitempty"`
	Notes                string           `gorm:"type:text" json:"notes"`
	ReturnNotes          string           `gorm:"type:text" json:"return_notes"`
	AccountingApprovedBy *string          `gorm:"type:varchar(32)" json:"accounting_approved_by,omitempty"`
	AccountingApprovedAt *time.Time       `json:"accounting_approved_at,omitempty"`
	CreatedBy            string           `gorm:"type:varchar(32)" json:"created_by"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`

	Asset *AssetModel `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

// TableName 指定表名
func (AssetDeploymentModel) TableName() string {
	return "asset_deployments"
}

// IsActive 未归还的领用记录
func (d *AssetDeploymentModel) IsActive() bool {
	return d.Status != DeploymentReturned
}

// AssetHistoryAction 资产履历动作
type AssetHistoryAction string

const (
	HistoryCreated     AssetHistoryAction = "CREATED"
	HistoryDeployed    AssetHistoryAction = "DEPLOYED"
	HistoryReturned    AssetHistoryAction = "RETURNED"
	HistoryDamaged     AssetHistoryAction = "DAMAGED"
	HistoryMaintenance AssetHistoryAction = "MAINTENANCE"
	HistoryRepaired    AssetHistoryAction = "REPAIRED"
	HistoryDisposed    AssetHistoryAction = "DISPOSED"
	HistoryLost        AssetHistoryAction = "LOST"
	HistoryFound       AssetHistoryAction = "FOUND"
	HistoryDepreciated AssetHistoryAction = "DEPRECIATED"
)

// AssetHistoryModel 资产履历
type AssetHistoryModel struct {
	ID          string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	AssetID     string             `gorm:"type:varchar(64);not null;index" json:"asset_id"`
	Action      AssetHistoryAction `gorm:"type:varchar(32);not null" json:"action"`
	FromStatus  AssetStatus        `gorm:"type:varchar(32)" json:"from_status"`
	ToStatus    AssetStatus        `gorm:"type:varchar(32)" json:"to_status"`
	EmployeeID  *string            `gorm:"type:varchar(32)" json:"employee_id,omitempty"`
	PerformedBy string             `gorm:"type:varchar(32);not null" json:"performed_by"`
	Amount      decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"amount"`
	Notes       string             `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time          `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (AssetHistoryModel) TableName() string {
	return "asset_histories"
}

package model

import (
	"errors"
	"time"

	"github.com/mautops/rdrealty-lms/internal/workflow"
	"github.com/shopspring/decimal"
)

// MaterialRequestSeries 单据系列
type MaterialRequestSeries string

const (
	SeriesPO    MaterialRequestSeries = "PO"
	SeriesJO    MaterialRequestSeries = "JO"
	SeriesOther MaterialRequestSeries = "OTHER"
)

// MaterialRequestType 申请类型
type MaterialRequestType string

const (
	RequestTypeItem    MaterialRequestType = "ITEM"
	RequestTypeService MaterialRequestType = "SERVICE"
)

// MaterialRequestModel 物料申请
type MaterialRequestModel struct {
	ID             string                `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DocumentNo     string                `gorm:"type:varchar(64);not null;uniqueIndex" json:"document_no"`
	Series         MaterialRequestSeries `gorm:"type:varchar(8);not null" json:"series"`
	Type           MaterialRequestType   `gorm:"type:varchar(16);not null" json:"type"`
	Status         workflow.Status       `gorm:"type:varchar(32);not null;index" json:"status"`
	IsStoreUse     bool                  `gorm:"not null;default:false" json:"is_store_use"`
	RequesterID    string                `gorm:"type:varchar(32);not null;index" json:"requester_id"`
	DepartmentID   *string               `gorm:"type:varchar(64)" json:"department_id,omitempty"`
	BusinessUnitID string                `gorm:"type:varchar(64);not null;index" json:"business_unit_id"`

	RecApproverID   string  `gorm:"type:varchar(32);not null;index" json:"rec_approver_id"`
	FinalApproverID *string `gorm:"type:varchar(32);index" json:"final_approver_id,omitempty"`
	ReviewerID      *string `gorm:"type:varchar(32)" json:"reviewer_id,omitempty"`

	Freight  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"freight"`
	Discount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"discount"`
	Total    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total"`

	RecApprovalStatus  workflow.ApprovalStatus `gorm:"type:varchar(16)" json:"rec_approval_status"`
	RecApprovedBy      *string                 `gorm:"type:varchar(32)" json:"rec_approved_by,omitempty"`
	RecApprovalAt      *time.Time              `json:"rec_approval_at,omitempty"`
	RecApprovalRemarks string                  `gorm:"type:text" json:"rec_approval_remarks"`

	FinalApprovalStatus  workflow.ApprovalStatus `gorm:"type:varchar(16)" json:"final_approval_status"`
	FinalApprovedBy      *string                 `gorm:"type:varchar(32)" json:"final_approved_by,omitempty"`
	FinalApprovalAt      *time.Time              `json:"final_approval_at,omitempty"`
	FinalApprovalRemarks string                  `gorm:"type:text" json:"final_approval_remarks"`

	ReviewStatus  workflow.ApprovalStatus `gorm:"type:varchar(16)" json:"review_status"`
	ReviewedBy    *string                 `gorm:"type:varchar(32)" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time              `json:"reviewed_at,omitempty"`
	ReviewRemarks string                  `gorm:"type:text" json:"review_remarks"`

	IsWithinBudget   *bool      `json:"is_within_budget,omitempty"`
	BudgetRemarks    string     `gorm:"type:text" json:"budget_remarks"`
	BudgetApprovedBy *string    `gorm:"type:varchar(32)" json:"budget_approved_by,omitempty"`
	BudgetApprovedAt *time.Time `json:"budget_approved_at,omitempty"`

	ServedBy       *string    `gorm:"type:varchar(32)" json:"served_by,omitempty"`
	ServedAt       *time.Time `json:"served_at,omitempty"`
	PostedBy       *string    `gorm:"type:varchar(32)" json:"posted_by,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`

	Purpose string `gorm:"type:text" json:"purpose"`
	Remarks string `gorm:"type:text" json:"remarks"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	Items []MaterialRequestItemModel `gorm:"foreignKey:MaterialRequestID" json:"items,omitempty"`
}

// TableName 指定表名
func (MaterialRequestModel) TableName() string {
	return "material_requests"
}

// Snapshot 转换为状态机快照
func (m *MaterialRequestModel) Snapshot(requesterIsRDHMRS bool, itemCount int) workflow.Request {
	req := workflow.Request{
		Status:            m.Status,
		BusinessUnitID:    m.BusinessUnitID,
		RequesterID:       m.RequesterID,
		RequesterIsRDHMRS: requesterIsRDHMRS,
		IsStoreUse:        m.IsStoreUse,
		RecApproverID:     m.RecApproverID,
		RecApproval:       m.RecApprovalStatus,
		FinalApproval:     m.FinalApprovalStatus,
		WithinBudget:      m.IsWithinBudget,
		Acknowledged:      m.AcknowledgedAt != nil,
		ItemCount:         itemCount,
	}
	if m.FinalApproverID != nil {
		req.FinalApproverID = *m.FinalApproverID
	}
	return req
}

// Validate 验证物料申请
func (m *MaterialRequestModel) Validate() error {
	if m.ID == "" {
		return errors.New("material request ID is required")
	}
	if m.RequesterID == "" {
		return errors.New("requester ID is required")
	}
	if m.BusinessUnitID == "" {
		return errors.New("business unit ID is required")
	}
	if m.RecApproverID == "" {
		return errors.New("recommending approver is required")
	}
	if !m.Status.IsValid() {
		return errors.New("invalid status")
	}
	return nil
}

// MaterialRequestItemModel 物料申请明细
type MaterialRequestItemModel struct {
	ID                string              `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MaterialRequestID string              `gorm:"type:varchar(64);not null;index" json:"material_request_id"`
	LineNo            int                 `gorm:"not null" json:"line_no"`
	ItemCode          string              `gorm:"type:varchar(64)" json:"item_code"`
	Description       string              `gorm:"type:text;not null" json:"description"`
	UOM               string              `gorm:"column:uom;type:varchar(16);not null" json:"uom"`
	Quantity          decimal.Decimal     `gorm:"type:decimal(15,2);not null" json:"quantity"`
	UnitPrice         decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"unit_price"`
	LineTotal         decimal.Decimal     `gorm:"type:decimal(15,2);not null;default:0" json:"line_total"`
	Remarks           string              `gorm:"type:text" json:"remarks"`
	CreatedAt         time.Time           `json:"created_at"`
}

// TableName 指定表名
func (MaterialRequestItemModel) TableName() string {
	return "material_request_items"
}

// ComputeLineTotal 计算行金额, 单价为空时为零
func (i *MaterialRequestItemModel) ComputeLineTotal() decimal.Decimal {
	if !i.UnitPrice.Valid {
		return decimal.Zero
	}
	return i.Quantity.Mul(i.UnitPrice.Decimal).Round(2)
}

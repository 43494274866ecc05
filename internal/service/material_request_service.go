package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/metrics"
	"github.com/mautops/rdrealty-lms/internal/model"
	"github.com/mautops/rdrealty-lms/internal/repository"
	"github.com/mautops/rdrealty-lms/internal/utils"
	"github.com/mautops/rdrealty-lms/internal/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MaterialRequestService 物料申请服务接口
type MaterialRequestService interface {
	Create(ctx context.Context, actor auth.Actor, req *CreateMaterialRequestRequest) (*model.MaterialRequestModel, error)
	Get(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error)
	History(ctx context.Context, actor auth.Actor, id string) ([]*model.StateHistoryModel, error)
	ListPending(ctx context.Context, actor auth.Actor) ([]*model.MaterialRequestModel, error)

	Submit(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error)
	Approve(ctx context.Context, actor auth.Actor, id string, comments string) (*model.MaterialRequestModel, error)
	Reject(ctx context.Context, actor auth.Actor, id string, comments string) (*model.MaterialRequestModel, error)
	MarkAsReviewed(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error)
	ApproveBudget(ctx context.Context, actor auth.Actor, id string, withinBudget bool, remarks string) (*model.MaterialRequestModel, error)
	Release(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error)
	MarkServed(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error)
	Post(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error)
	Acknowledge(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error)
	Cancel(ctx context.Context, actor auth.Actor, id string, reason string) (*model.MaterialRequestModel, error)
}

// CreateMaterialRequestRequest 创建物料申请请求
type CreateMaterialRequestRequest struct {
	Series          model.MaterialRequestSeries `json:"series"`                 // PO/JO/OTHER, 默认 PO
	Type            model.MaterialRequestType   `json:"type"`                   // ITEM/SERVICE, 默认 ITEM
	IsStoreUse      bool                        `json:"is_store_use"`           // 门店自用
	DepartmentID    *string                     `json:"department_id"`          // 部门
	RecApproverID   string                      `json:"rec_approver_id"`        // 推荐审批人, 为空时取直属主管
	FinalApproverID *string                     `json:"final_approver_id"`      // 终审人, 可为空
	Freight         decimal.Decimal             `json:"freight"`                // 运费
	Discount        decimal.Decimal             `json:"discount"`               // 折扣
	Purpose         string                      `json:"purpose"`                // 用途
	Remarks         string                      `json:"remarks"`                // 备注
	Items           []MaterialRequestItemInput  `json:"items" binding:"required"`
}

// MaterialRequestItemInput 物料申请明细输入
type MaterialRequestItemInput struct {
	ItemCode    string              `json:"item_code"`
	Description string              `json:"description"`
	UOM         string              `json:"uom"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Remarks     string              `json:"remarks"`
}

type materialRequestService struct {
	effects
	db     *gorm.DB
	policy *auth.Policy
	now    func() time.Time
}

// NewMaterialRequestService 创建物料申请服务
func NewMaterialRequestService(db *gorm.DB, policy *auth.Policy, auditLogSvc AuditLogService, invalidator Invalidator, logger *logrus.Logger) MaterialRequestService {
	return &materialRequestService{
		effects: newEffects(auditLogSvc, invalidator, logger),
		db:      db,
		policy:  policy,
		now:     time.Now,
	}
}

// Create 创建草稿, 单据号与明细在同一事务中写入
func (s *materialRequestService) Create(ctx context.Context, actor auth.Actor, req *CreateMaterialRequestRequest) (*model.MaterialRequestModel, error) {
	// 1. 校验输入并计算金额
	if len(req.Items) == 0 {
		return nil, validationf("at least one item is required")
	}
	series := req.Series
	if series == "" {
		series = model.SeriesPO
	}
	if series != model.SeriesPO && series != model.SeriesJO && series != model.SeriesOther {
		return nil, validationf("unknown series %q", series)
	}
	reqType := req.Type
	if reqType == "" {
		reqType = model.RequestTypeItem
	}
	if reqType != model.RequestTypeItem && reqType != model.RequestTypeService {
		return nil, validationf("unknown type %q", reqType)
	}
	if req.Freight.IsNegative() || req.Discount.IsNegative() {
		return nil, validationf("freight and discount must not be negative")
	}
	purpose, err := cleanText("purpose", req.Purpose, utils.MaxRemarksLength)
	if err != nil {
		return nil, err
	}
	remarks, err := cleanText("remarks", req.Remarks, utils.MaxRemarksLength)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	items := make([]model.MaterialRequestItemModel, 0, len(req.Items))
	subtotal := decimal.Zero
	for i, in := range req.Items {
		line := i + 1
		if strings.TrimSpace(in.Description) == "" {
			return nil, validationf("item %d: description is required", line)
		}
		if strings.TrimSpace(in.UOM) == "" {
			return nil, validationf("item %d: unit of measure is required", line)
		}
		if !in.Quantity.IsPositive() {
			return nil, validationf("item %d: quantity must be greater than zero", line)
		}
		if in.UnitPrice.Valid && in.UnitPrice.Decimal.IsNegative() {
			return nil, validationf("item %d: unit price must not be negative", line)
		}
		item := model.MaterialRequestItemModel{
			ID:                uuid.New().String(),
			MaterialRequestID: id,
			LineNo:            line,
			ItemCode:          strings.TrimSpace(in.ItemCode),
			Description:       strings.TrimSpace(in.Description),
			UOM:               strings.TrimSpace(in.UOM),
			Quantity:          in.Quantity,
			UnitPrice:         in.UnitPrice,
			Remarks:           in.Remarks,
		}
		item.LineTotal = item.ComputeLineTotal()
		subtotal = subtotal.Add(item.LineTotal)
		items = append(items, item)
	}
	total := subtotal.Add(req.Freight).Sub(req.Discount)
	if total.IsNegative() {
		return nil, validationf("discount exceeds the request total")
	}

	// 2. 推荐审批人默认为直属主管
	users := repository.NewUserRepository(s.db)
	recApprover := strings.TrimSpace(req.RecApproverID)
	if recApprover == "" {
		requester, err := users.FindByEmployeeID(ctx, actor.EmployeeID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load requester: %w", err)
		}
		if requester != nil && requester.ApproverID != nil {
			recApprover = *requester.ApproverID
		}
	}
	if recApprover == "" {
		return nil, validationf("recommending approver is required")
	}
	if recApprover == actor.EmployeeID {
		return nil, validationf("requester cannot be the recommending approver")
	}
	finalApprover := req.FinalApproverID
	if finalApprover != nil && strings.TrimSpace(*finalApprover) == "" {
		finalApprover = nil
	}

	buCode := actor.BusinessUnitID
	if bu, err := users.FindBusinessUnit(ctx, actor.BusinessUnitID); err == nil {
		buCode = bu.Code
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load business unit: %w", err)
	}

	departmentID := req.DepartmentID
	if departmentID == nil && actor.DepartmentID != "" {
		dept := actor.DepartmentID
		departmentID = &dept
	}

	mr := &model.MaterialRequestModel{
		ID:              id,
		Series:          series,
		Type:            reqType,
		Status:          workflow.StatusDraft,
		IsStoreUse:      req.IsStoreUse,
		RequesterID:     actor.EmployeeID,
		DepartmentID:    departmentID,
		BusinessUnitID:  actor.BusinessUnitID,
		RecApproverID:   recApprover,
		FinalApproverID: finalApprover,
		Freight:         req.Freight,
		Discount:        req.Discount,
		Total:           total,
		Purpose:         purpose,
		Remarks:         remarks,
		Version:         1,
		Items:           items,
	}

	// 3. 事务内生成单据号并写入
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := repository.NewMaterialRequestRepository(tx)
		prefix := fmt.Sprintf("MRS-%s-%d-", strings.ToUpper(buCode), s.now().Year())
		n, err := repo.CountDocumentPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to allocate document number: %w", err)
		}
		mr.DocumentNo = fmt.Sprintf("%s%05d", prefix, n+1)

		if err := repo.Create(ctx, mr); err != nil {
			return fmt.Errorf("failed to create material request: %w", err)
		}
		return saveHistory(ctx, tx, EntityMaterialRequest, mr.ID, "create", "", string(workflow.StatusDraft), "", actor.EmployeeID)
	})
	if err != nil {
		return nil, err
	}

	// 4. 审计与指标
	metrics.RecordMaterialRequestCreated()
	s.record(ctx, actor.EmployeeID, "create", EntityMaterialRequest, mr.ID, map[string]interface{}{
		"document_no": mr.DocumentNo,
		"total":       mr.Total.StringFixed(2),
		"items":       len(items),
	})

	return mr, nil
}

// Get 查询物料申请详情
func (s *materialRequestService) Get(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error) {
	mr, err := repository.NewMaterialRequestRepository(s.db).FindWithItems(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "material request", id)
	}
	if !canView(actor, mr) {
		return nil, unauthorizedf("material request %s belongs to another business unit", id)
	}
	return mr, nil
}

// History 查询状态历史
func (s *materialRequestService) History(ctx context.Context, actor auth.Actor, id string) ([]*model.StateHistoryModel, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return repository.NewStateHistoryRepository(s.db).FindByEntity(ctx, EntityMaterialRequest, id)
}

// ListPending 查询当前操作人的待办
func (s *materialRequestService) ListPending(ctx context.Context, actor auth.Actor) ([]*model.MaterialRequestModel, error) {
	return repository.NewMaterialRequestRepository(s.db).
		List(ctx, PendingMaterialRequestScope(actor, s.policy.ExcludedEmployeeIDs()))
}

// Submit 提交草稿
func (s *materialRequestService) Submit(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionSubmit, workflow.Input{})
}

// Approve 推荐审批或终审通过
func (s *materialRequestService) Approve(ctx context.Context, actor auth.Actor, id string, comments string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionApprove, workflow.Input{Comments: comments})
}

// Reject 驳回, 必须填写意见
func (s *materialRequestService) Reject(ctx context.Context, actor auth.Actor, id string, comments string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionReject, workflow.Input{Comments: comments})
}

// MarkAsReviewed 门店自用申请审核通过
func (s *materialRequestService) MarkAsReviewed(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionReview, workflow.Input{Comments: remarks})
}

// ApproveBudget 记录预算审批结果
func (s *materialRequestService) ApproveBudget(ctx context.Context, actor auth.Actor, id string, withinBudget bool, remarks string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionApproveBudget, workflow.Input{Comments: remarks, WithinBudget: &withinBudget})
}

// Release 单级审批通过的申请下发到发料环节
func (s *materialRequestService) Release(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionRelease, workflow.Input{Comments: remarks})
}

// MarkServed 发料完成
func (s *materialRequestService) MarkServed(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionServe, workflow.Input{Comments: remarks})
}

// Post 过账
func (s *materialRequestService) Post(ctx context.Context, actor auth.Actor, id string, remarks string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionPost, workflow.Input{Comments: remarks})
}

// Acknowledge 申请人确认收货
func (s *materialRequestService) Acknowledge(ctx context.Context, actor auth.Actor, id string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionAcknowledge, workflow.Input{})
}

// Cancel 申请人撤销
func (s *materialRequestService) Cancel(ctx context.Context, actor auth.Actor, id string, reason string) (*model.MaterialRequestModel, error) {
	return s.apply(ctx, actor, id, workflow.ActionCancel, workflow.Input{Comments: reason})
}

// apply 加载申请, 计算迁移并按版本号持久化
func (s *materialRequestService) apply(ctx context.Context, actor auth.Actor, id string, action workflow.Action, in workflow.Input) (*model.MaterialRequestModel, error) {
	comments, err := cleanText("comments", in.Comments, utils.MaxRemarksLength)
	if err != nil {
		return nil, err
	}
	in.Comments = comments
	repo := repository.NewMaterialRequestRepository(s.db)

	// 1. 加载申请
	mr, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "material request", id)
	}

	// 2. 补充状态机需要的上下文
	requesterIsRDHMRS := false
	if action == workflow.ActionReview {
		requester, err := repository.NewUserRepository(s.db).FindByEmployeeID(ctx, mr.RequesterID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load requester: %w", err)
		}
		requesterIsRDHMRS = requester != nil && requester.IsRDHMRS
	}
	itemCount := 0
	if action == workflow.ActionSubmit {
		if itemCount, err = repo.CountItems(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to count items: %w", err)
		}
	}

	// 3. 计算迁移
	outcome, err := workflow.Transition(mr.Snapshot(requesterIsRDHMRS, itemCount), action, actor, in)
	if err != nil {
		return nil, err
	}

	// 4. 按版本号更新并写状态历史
	updates := s.buildUpdates(outcome, action, actor, in)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := repository.NewMaterialRequestRepository(tx).UpdateWithVersion(ctx, id, mr.Version, updates)
		if err != nil {
			return fmt.Errorf("failed to update material request: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: material request %s", ErrConflict, id)
		}
		return saveHistory(ctx, tx, EntityMaterialRequest, id, string(action),
			string(outcome.From), string(outcome.To), in.Comments, actor.EmployeeID)
	})
	if err != nil {
		return nil, err
	}

	// 5. 审计, 指标, 计数失效
	metrics.RecordApproval(string(action))
	details := map[string]interface{}{
		"document_no": mr.DocumentNo,
		"from":        outcome.From,
		"to":          outcome.To,
	}
	if in.Comments != "" {
		details["comments"] = in.Comments
	}
	if outcome.RecordBudget {
		details["within_budget"] = outcome.WithinBudget
	}
	s.record(ctx, actor.EmployeeID, string(action), EntityMaterialRequest, id, details)
	s.invalidate(ctx, actor.BusinessUnitID, mr.BusinessUnitID)

	s.logger.WithFields(logrus.Fields{
		"material_request": mr.DocumentNo,
		"action":           action,
		"from":             outcome.From,
		"to":               outcome.To,
		"actor":            actor.EmployeeID,
	}).Info("material request transition")

	return repo.FindWithItems(ctx, id)
}

// buildUpdates 将迁移结果转换为列更新
func (s *materialRequestService) buildUpdates(out workflow.Outcome, action workflow.Action, actor auth.Actor, in workflow.Input) map[string]interface{} {
	now := s.now()
	updates := map[string]interface{}{}
	if out.Changed() {
		updates["status"] = out.To
	}

	switch out.Stage {
	case workflow.StageReview:
		updates["review_status"] = out.StageResult
		if out.StageResult != workflow.ApprovalPending {
			updates["reviewer_id"] = actor.EmployeeID
			updates["reviewed_by"] = actor.EmployeeID
			updates["reviewed_at"] = now
			updates["review_remarks"] = in.Comments
		}
	case workflow.StageRec:
		updates["rec_approval_status"] = out.StageResult
		updates["rec_approved_by"] = actor.EmployeeID
		updates["rec_approval_at"] = now
		updates["rec_approval_remarks"] = in.Comments
	case workflow.StageFinal:
		updates["final_approval_status"] = out.StageResult
		updates["final_approved_by"] = actor.EmployeeID
		updates["final_approval_at"] = now
		updates["final_approval_remarks"] = in.Comments
	}

	if out.OpenRec {
		updates["rec_approval_status"] = workflow.ApprovalPending
	}
	if out.AlsoFinal {
		updates["final_approval_status"] = workflow.ApprovalApproved
		updates["final_approved_by"] = actor.EmployeeID
		updates["final_approval_at"] = now
		updates["final_approval_remarks"] = in.Comments
	}
	if out.RecordBudget {
		updates["is_within_budget"] = out.WithinBudget
		updates["budget_remarks"] = in.Comments
		updates["budget_approved_by"] = actor.EmployeeID
		updates["budget_approved_at"] = now
	}
	if out.Acknowledge {
		updates["acknowledged_at"] = now
	}

	switch action {
	case workflow.ActionServe:
		updates["served_by"] = actor.EmployeeID
		updates["served_at"] = now
	case workflow.ActionPost:
		updates["posted_by"] = actor.EmployeeID
		updates["posted_at"] = now
	case workflow.ActionCancel:
		updates["cancelled_at"] = now
	}
	return updates
}

// canView 申请人, 审批人, 或同一业务单元的员工可查看
func canView(actor auth.Actor, mr *model.MaterialRequestModel) bool {
	if actor.CanActOnUnit(mr.BusinessUnitID) {
		return true
	}
	if actor.EmployeeID == mr.RequesterID || actor.EmployeeID == mr.RecApproverID {
		return true
	}
	return mr.FinalApproverID != nil && *mr.FinalApproverID == actor.EmployeeID
}

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
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HRRequestService 请假/加班审批服务接口
type HRRequestService interface {
	CreateLeave(ctx context.Context, actor auth.Actor, req *CreateLeaveRequest) (*model.LeaveRequestModel, error)
	CreateOvertime(ctx context.Context, actor auth.Actor, req *CreateOvertimeRequest) (*model.OvertimeRequestModel, error)
	ListPendingLeave(ctx context.Context, actor auth.Actor) ([]*model.LeaveRequestModel, error)
	ListPendingOvertime(ctx context.Context, actor auth.Actor) ([]*model.OvertimeRequestModel, error)
	Approve(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string, comments string) (*repository.StagedRecord, error)
	Reject(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string, comments string) (*repository.StagedRecord, error)
	Cancel(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string) (*repository.StagedRecord, error)
}

// CreateLeaveRequest 请假申请
type CreateLeaveRequest struct {
	LeaveType string          `json:"leave_type" binding:"required"`
	StartDate time.Time       `json:"start_date" binding:"required"`
	EndDate   time.Time       `json:"end_date" binding:"required"`
	Days      decimal.Decimal `json:"days"` // 为零时按自然日计算
	Reason    string          `json:"reason"`
}

// CreateOvertimeRequest 加班申请
type CreateOvertimeRequest struct {
	WorkDate  time.Time       `json:"work_date" binding:"required"`
	StartTime time.Time       `json:"start_time" binding:"required"`
	EndTime   time.Time       `json:"end_time" binding:"required"`
	Hours     decimal.Decimal `json:"hours"` // 为零时按起止时间计算
	Reason    string          `json:"reason"`
}

type hrRequestService struct {
	effects
	db     *gorm.DB
	policy *auth.Policy
	now    func() time.Time
}

// NewHRRequestService 创建请假/加班审批服务
func NewHRRequestService(db *gorm.DB, policy *auth.Policy, auditLogSvc AuditLogService, invalidator Invalidator, logger *logrus.Logger) HRRequestService {
	return &hrRequestService{
		effects: newEffects(auditLogSvc, invalidator, logger),
		db:      db,
		policy:  policy,
		now:     time.Now,
	}
}

// initialStage 有直属主管时从主管审批开始, 否则直接进入 HR 审批
func (s *hrRequestService) initialStage(ctx context.Context, actor auth.Actor) (model.HRRequestStatus, error) {
	user, err := repository.NewUserRepository(s.db).FindByEmployeeID(ctx, actor.EmployeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: employee %s", ErrNotFound, actor.EmployeeID)
		}
		return "", fmt.Errorf("failed to load employee: %w", err)
	}
	if user.ApproverID != nil && *user.ApproverID != "" {
		return model.HRPendingManager, nil
	}
	return model.HRPendingHR, nil
}

// CreateLeave 提交请假申请
func (s *hrRequestService) CreateLeave(ctx context.Context, actor auth.Actor, req *CreateLeaveRequest) (*model.LeaveRequestModel, error) {
	if strings.TrimSpace(req.LeaveType) == "" {
		return nil, validationf("leave type is required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, validationf("end date is before start date")
	}
	days := req.Days
	if days.IsZero() {
		days = decimal.NewFromInt(int64(req.EndDate.Sub(req.StartDate).Hours()/24) + 1)
	}
	if !days.IsPositive() {
		return nil, validationf("days must be greater than zero")
	}

	reason, err := cleanText("reason", req.Reason, utils.MaxReasonLength)
	if err != nil {
		return nil, err
	}

	status, err := s.initialStage(ctx, actor)
	if err != nil {
		return nil, err
	}
	leave := &model.LeaveRequestModel{
		ID: uuid.New().String(),
		StagedApproval: model.StagedApproval{
			EmployeeID:     actor.EmployeeID,
			BusinessUnitID: actor.BusinessUnitID,
			Status:         status,
			Version:        1,
		},
		LeaveType: strings.TrimSpace(req.LeaveType),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Days:      days,
		Reason:    reason,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewHRRequestRepository(tx).CreateLeave(ctx, leave); err != nil {
			return fmt.Errorf("failed to create leave request: %w", err)
		}
		return saveHistory(ctx, tx, EntityLeaveRequest, leave.ID, "create", "", string(status), "", actor.EmployeeID)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "create", EntityLeaveRequest, leave.ID, map[string]interface{}{
		"leave_type": leave.LeaveType,
		"days":       leave.Days.String(),
	})
	s.invalidate(ctx, actor.BusinessUnitID)
	return leave, nil
}

// CreateOvertime 提交加班申请
func (s *hrRequestService) CreateOvertime(ctx context.Context, actor auth.Actor, req *CreateOvertimeRequest) (*model.OvertimeRequestModel, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, validationf("end time must be after start time")
	}
	hours := req.Hours
	if hours.IsZero() {
		hours = decimal.NewFromFloat(req.EndTime.Sub(req.StartTime).Hours()).Round(2)
	}
	if !hours.IsPositive() {
		return nil, validationf("hours must be greater than zero")
	}

	reason, err := cleanText("reason", req.Reason, utils.MaxReasonLength)
	if err != nil {
		return nil, err
	}

	status, err := s.initialStage(ctx, actor)
	if err != nil {
		return nil, err
	}
	ot := &model.OvertimeRequestModel{
		ID: uuid.New().String(),
		StagedApproval: model.StagedApproval{
			EmployeeID:     actor.EmployeeID,
			BusinessUnitID: actor.BusinessUnitID,
			Status:         status,
			Version:        1,
		},
		WorkDate:  req.WorkDate,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Hours:     hours,
		Reason:    reason,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewHRRequestRepository(tx).CreateOvertime(ctx, ot); err != nil {
			return fmt.Errorf("failed to create overtime request: %w", err)
		}
		return saveHistory(ctx, tx, EntityOvertime, ot.ID, "create", "", string(status), "", actor.EmployeeID)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.EmployeeID, "create", EntityOvertime, ot.ID, map[string]interface{}{
		"hours": ot.Hours.String(),
	})
	s.invalidate(ctx, actor.BusinessUnitID)
	return ot, nil
}

// ListPendingLeave 当前操作人可处理的请假申请
func (s *hrRequestService) ListPendingLeave(ctx context.Context, actor auth.Actor) ([]*model.LeaveRequestModel, error) {
	return repository.NewHRRequestRepository(s.db).
		ListLeave(ctx, PendingHRRequestScope(actor, s.policy.ExcludedEmployeeIDs()))
}

// ListPendingOvertime 当前操作人可处理的加班申请
func (s *hrRequestService) ListPendingOvertime(ctx context.Context, actor auth.Actor) ([]*model.OvertimeRequestModel, error) {
	return repository.NewHRRequestRepository(s.db).
		ListOvertime(ctx, PendingHRRequestScope(actor, s.policy.ExcludedEmployeeIDs()))
}

// Approve 主管审批后进入 HR 审批, HR 审批后通过
func (s *hrRequestService) Approve(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string, comments string) (*repository.StagedRecord, error) {
	return s.decide(ctx, actor, kind, id, "approve", comments)
}

// Reject 任一环节驳回, 必须填写意见
func (s *hrRequestService) Reject(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string, comments string) (*repository.StagedRecord, error) {
	return s.decide(ctx, actor, kind, id, "reject", comments)
}

func (s *hrRequestService) decide(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id, action, comments string) (*repository.StagedRecord, error) {
	comments, err := cleanText("comments", comments, utils.MaxRemarksLength)
	if err != nil {
		return nil, err
	}
	if action == "reject" && comments == "" {
		return nil, validationf("comments are required")
	}
	repo := repository.NewHRRequestRepository(s.db)

	// 1. 加载申请并校验范围
	rec, err := repo.FindStaged(ctx, kind, id)
	if err != nil {
		return nil, notFoundOr(err, string(kind), id)
	}
	if !actor.CanActOnUnit(rec.BusinessUnitID) {
		return nil, unauthorizedf("request belongs to another business unit")
	}
	if rec.EmployeeID == actor.EmployeeID {
		return nil, unauthorizedf("cannot decide on your own request")
	}

	// 2. 按环节校验审批人
	now := s.now()
	updates := map[string]interface{}{}
	var to model.HRRequestStatus
	switch rec.Status {
	case model.HRPendingManager:
		if !actor.IsAdmin() {
			requester, err := repository.NewUserRepository(s.db).FindByEmployeeID(ctx, rec.EmployeeID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to load requester: %w", err)
			}
			if requester == nil || requester.ApproverID == nil || *requester.ApproverID != actor.EmployeeID {
				return nil, unauthorizedf("not authorized to %s", action)
			}
		}
		to = model.HRPendingHR
		updates["manager_id"] = actor.EmployeeID
		updates["manager_action_at"] = now
		updates["manager_comments"] = comments
	case model.HRPendingHR:
		if !actor.IsAdmin() && actor.Role != auth.RoleHR {
			return nil, unauthorizedf("not authorized to %s", action)
		}
		to = model.HRApproved
		updates["hr_id"] = actor.EmployeeID
		updates["hr_action_at"] = now
		updates["hr_comments"] = comments
	default:
		return nil, invalidStatef("request is %s", rec.Status)
	}
	if action == "reject" {
		to = model.HRRejected
	}
	updates["status"] = to

	// 3. 按版本号更新
	if err := s.persist(ctx, kind, rec, to, action, comments, actor, updates); err != nil {
		return nil, err
	}
	metrics.RecordApproval(string(kind) + "_" + action)
	return repo.FindStaged(ctx, kind, id)
}

// Cancel 申请人撤销待审批的申请
func (s *hrRequestService) Cancel(ctx context.Context, actor auth.Actor, kind repository.HRRequestKind, id string) (*repository.StagedRecord, error) {
	repo := repository.NewHRRequestRepository(s.db)
	rec, err := repo.FindStaged(ctx, kind, id)
	if err != nil {
		return nil, notFoundOr(err, string(kind), id)
	}
	if rec.EmployeeID != actor.EmployeeID {
		return nil, unauthorizedf("only the requester can cancel")
	}
	if !rec.Status.IsPending() {
		return nil, invalidStatef("request is %s", rec.Status)
	}

	updates := map[string]interface{}{"status": model.HRCancelled}
	if err := s.persist(ctx, kind, rec, model.HRCancelled, "cancel", "", actor, updates); err != nil {
		return nil, err
	}
	return repo.FindStaged(ctx, kind, id)
}

func (s *hrRequestService) persist(ctx context.Context, kind repository.HRRequestKind, rec *repository.StagedRecord, to model.HRRequestStatus, action, comments string, actor auth.Actor, updates map[string]interface{}) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := repository.NewHRRequestRepository(tx).UpdateWithVersion(ctx, kind, rec.ID, rec.Version, updates)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", kind, err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s %s", ErrConflict, kind, rec.ID)
		}
		return saveHistory(ctx, tx, string(kind), rec.ID, action, string(rec.Status), string(to), comments, actor.EmployeeID)
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor.EmployeeID, action, string(kind), rec.ID, map[string]interface{}{
		"from":     rec.Status,
		"to":       to,
		"comments": comments,
	})
	s.invalidate(ctx, actor.BusinessUnitID, rec.BusinessUnitID)
	return nil
}

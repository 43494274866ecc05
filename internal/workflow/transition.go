package workflow

import (
	"strings"

	"github.com/mautops/rdrealty-lms/internal/auth"
)

// Request 状态迁移所需的申请快照
type Request struct {
	Status            Status
	BusinessUnitID    string
	RequesterID       string
	RequesterIsRDHMRS bool
	IsStoreUse        bool
	RecApproverID     string
	FinalApproverID   string
	RecApproval       ApprovalStatus
	FinalApproval     ApprovalStatus
	WithinBudget      *bool
	Acknowledged      bool
	ItemCount         int
}

// IsClosed 是否已结束: 驳回, 取消, 或已过账且已确认
func (r Request) IsClosed() bool {
	return r.Status.IsTerminal() || (r.Status == StatusPosted && r.Acknowledged)
}

// budgetRejected 预算审批明确判定为超预算
func (r Request) budgetRejected() bool {
	return r.WithinBudget != nil && !*r.WithinBudget
}

// Input 操作附带的输入
type Input struct {
	Comments     string
	WithinBudget *bool
}

// Outcome 状态迁移结果
type Outcome struct {
	From Status
	To   Status

	// Stage 本次写入的审批环节及结果
	Stage       Stage
	StageResult ApprovalStatus

	// AlsoFinal 无终审人时推荐审批同时视为终审通过
	AlsoFinal bool

	// OpenRec 将推荐审批子状态初始化为 PENDING
	OpenRec bool

	// RecordBudget 写入预算审批结果
	RecordBudget bool
	WithinBudget bool

	Acknowledge bool
}

// Changed 状态是否发生变化
func (o Outcome) Changed() bool {
	return o.From != o.To
}

// Transition 计算物料申请在给定操作下的下一个状态
// 所有合法迁移都在这里定义, 服务层只负责持久化结果
func Transition(req Request, action Action, actor auth.Actor, in Input) (Outcome, error) {
	out := Outcome{From: req.Status, To: req.Status}

	// 审批对任何不匹配的状态一律视为无权限, 已结束的申请也不例外
	if req.IsClosed() && action != ActionApprove {
		return out, newTransitionError(req.Status, action, ErrInvalidState, "request is closed")
	}

	switch action {
	case ActionSubmit:
		return submit(req, actor, out)
	case ActionReview:
		return review(req, actor, out)
	case ActionApproveBudget:
		return approveBudget(req, actor, in, out)
	case ActionApprove:
		return approve(req, actor, out)
	case ActionReject:
		return reject(req, actor, in, out)
	case ActionRelease:
		return release(req, actor, out)
	case ActionServe:
		return coordinate(req, actor, out, auth.CapMRSCoordinate, StatusForServing, StatusForPosting)
	case ActionPost:
		return coordinate(req, actor, out, auth.CapMRSPost, StatusForPosting, StatusPosted)
	case ActionAcknowledge:
		return acknowledge(req, actor, out)
	case ActionCancel:
		return cancel(req, actor, out)
	default:
		return out, newTransitionError(req.Status, action, ErrInvalidState, "unknown action")
	}
}

func submit(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if actor.EmployeeID != req.RequesterID {
		return out, newTransitionError(req.Status, ActionSubmit, ErrUnauthorized, "only the requester can submit")
	}
	if req.Status != StatusDraft {
		return out, newTransitionError(req.Status, ActionSubmit, ErrInvalidState, "only drafts can be submitted")
	}
	if req.ItemCount == 0 {
		return out, newTransitionError(req.Status, ActionSubmit, ErrValidation, "request has no items")
	}
	if req.IsStoreUse {
		out.To = StatusForReview
		out.Stage = StageReview
		out.StageResult = ApprovalPending
		return out, nil
	}
	out.To = StatusForRecApproval
	out.OpenRec = true
	return out, nil
}

func review(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if !actor.Has(auth.CapStoreUseReview) {
		return out, newTransitionError(req.Status, ActionReview, ErrUnauthorized, "not authorized to review store-use requests")
	}
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, ActionReview, ErrUnauthorized, "request belongs to another business unit")
	}
	if req.Status != StatusForReview {
		return out, newTransitionError(req.Status, ActionReview, ErrInvalidState, "request is not awaiting review")
	}
	out.Stage = StageReview
	out.StageResult = ApprovalApproved
	if req.RequesterIsRDHMRS {
		out.To = StatusPendingBudgetApproval
		return out, nil
	}
	out.To = StatusForRecApproval
	out.OpenRec = true
	return out, nil
}

func approveBudget(req Request, actor auth.Actor, in Input, out Outcome) (Outcome, error) {
	if !actor.Has(auth.CapBudgetApprove) {
		return out, newTransitionError(req.Status, ActionApproveBudget, ErrUnauthorized, "not authorized to approve budget")
	}
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, ActionApproveBudget, ErrUnauthorized, "request belongs to another business unit")
	}
	if in.WithinBudget == nil {
		return out, newTransitionError(req.Status, ActionApproveBudget, ErrValidation, "within-budget flag is required")
	}
	switch req.Status {
	case StatusPendingBudgetApproval, StatusForRecApproval, StatusForFinalApproval:
	default:
		return out, newTransitionError(req.Status, ActionApproveBudget, ErrInvalidState, "budget can no longer be evaluated")
	}

	out.Stage = StageBudget
	out.RecordBudget = true
	out.WithinBudget = *in.WithinBudget
	if *in.WithinBudget {
		out.StageResult = ApprovalApproved
	} else {
		out.StageResult = ApprovalDisapproved
	}
	// 超预算的申请停留在预算审批环节
	if req.Status == StatusPendingBudgetApproval && *in.WithinBudget {
		out.To = StatusForRecApproval
		out.OpenRec = true
	}
	return out, nil
}

func approve(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, ActionApprove, ErrUnauthorized, "request belongs to another business unit")
	}

	switch {
	case req.Status == StatusForRecApproval && actor.EmployeeID == req.RecApproverID:
		out.Stage = StageRec
		out.StageResult = ApprovalApproved
		if req.FinalApproverID != "" {
			out.To = StatusForFinalApproval
		} else {
			out.To = StatusFinalApproved
			out.AlsoFinal = true
		}
		return out, nil

	case req.Status == StatusForFinalApproval && actor.EmployeeID == req.FinalApproverID && req.RecApproval == ApprovalApproved:
		// 终审人按序操作, 但预算审批判定超预算
		if req.budgetRejected() {
			return out, newTransitionError(req.Status, ActionApprove, ErrInvalidState, "request is not within budget")
		}
		out.Stage = StageFinal
		out.StageResult = ApprovalApproved
		out.To = StatusForServing
		return out, nil

	default:
		return out, newTransitionError(req.Status, ActionApprove, ErrUnauthorized, "not authorized to approve")
	}
}

func reject(req Request, actor auth.Actor, in Input, out Outcome) (Outcome, error) {
	if strings.TrimSpace(in.Comments) == "" {
		return out, newTransitionError(req.Status, ActionReject, ErrValidation, "comments are required")
	}
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, ActionReject, ErrUnauthorized, "request belongs to another business unit")
	}

	switch req.Status {
	case StatusForRecApproval:
		if actor.EmployeeID != req.RecApproverID {
			return out, newTransitionError(req.Status, ActionReject, ErrUnauthorized, "not authorized to reject")
		}
		out.Stage = StageRec
	case StatusForFinalApproval:
		if actor.EmployeeID != req.FinalApproverID {
			return out, newTransitionError(req.Status, ActionReject, ErrUnauthorized, "not authorized to reject")
		}
		out.Stage = StageFinal
	default:
		return out, newTransitionError(req.Status, ActionReject, ErrInvalidState, "request is not awaiting approval")
	}
	out.StageResult = ApprovalDisapproved
	out.To = StatusDisapproved
	return out, nil
}

func release(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if !actor.Has(auth.CapMRSCoordinate) {
		return out, newTransitionError(req.Status, ActionRelease, ErrUnauthorized, "not authorized to release for serving")
	}
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, ActionRelease, ErrUnauthorized, "request belongs to another business unit")
	}
	if req.Status != StatusFinalApproved {
		return out, newTransitionError(req.Status, ActionRelease, ErrInvalidState, "request is not final approved")
	}
	if req.FinalApproval != ApprovalApproved {
		return out, newTransitionError(req.Status, ActionRelease, ErrInvalidState, "final approval has not been granted")
	}
	if req.budgetRejected() {
		return out, newTransitionError(req.Status, ActionRelease, ErrInvalidState, "request is not within budget")
	}
	out.To = StatusForServing
	return out, nil
}

func coordinate(req Request, actor auth.Actor, out Outcome, capability auth.Capability, from, to Status) (Outcome, error) {
	action := ActionServe
	if to == StatusPosted {
		action = ActionPost
	}
	if !actor.Has(capability) {
		return out, newTransitionError(req.Status, action, ErrUnauthorized, "missing capability "+string(capability))
	}
	if !actor.CanActOnUnit(req.BusinessUnitID) {
		return out, newTransitionError(req.Status, action, ErrUnauthorized, "request belongs to another business unit")
	}
	if req.Status != from {
		return out, newTransitionError(req.Status, action, ErrInvalidState, "expected status "+string(from))
	}
	out.To = to
	return out, nil
}

func acknowledge(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if actor.EmployeeID != req.RequesterID {
		return out, newTransitionError(req.Status, ActionAcknowledge, ErrUnauthorized, "only the requester can acknowledge")
	}
	if req.Status != StatusPosted {
		return out, newTransitionError(req.Status, ActionAcknowledge, ErrInvalidState, "request is not posted")
	}
	out.Acknowledge = true
	return out, nil
}

func cancel(req Request, actor auth.Actor, out Outcome) (Outcome, error) {
	if actor.EmployeeID != req.RequesterID {
		return out, newTransitionError(req.Status, ActionCancel, ErrUnauthorized, "only the requester can cancel")
	}
	switch req.Status {
	case StatusDraft, StatusForReview, StatusPendingBudgetApproval:
	case StatusForRecApproval:
		if req.RecApproval == ApprovalApproved {
			return out, newTransitionError(req.Status, ActionCancel, ErrInvalidState, "request already has approvals")
		}
	default:
		return out, newTransitionError(req.Status, ActionCancel, ErrInvalidState, "request can no longer be cancelled")
	}
	out.To = StatusCancelled
	return out, nil
}

package workflow

// Status 物料申请状态
type Status string

const (
	StatusDraft                 Status = "DRAFT"
	StatusForReview             Status = "FOR_REVIEW"
	StatusPendingBudgetApproval Status = "PENDING_BUDGET_APPROVAL"
	StatusForRecApproval        Status = "FOR_REC_APPROVAL"
	// StatusRecApproved 仅为兼容历史数据保留, 没有迁移会进入该状态
	StatusRecApproved      Status = "REC_APPROVED"
	StatusForFinalApproval Status = "FOR_FINAL_APPROVAL"
	StatusFinalApproved    Status = "FINAL_APPROVED"
	StatusForServing       Status = "FOR_SERVING"
	StatusForPosting       Status = "FOR_POSTING"
	StatusPosted           Status = "POSTED"
	StatusDisapproved      Status = "DISAPPROVED"
	StatusCancelled        Status = "CANCELLED"
)

var validStatuses = map[Status]bool{
	StatusDraft:                 true,
	StatusForReview:             true,
	StatusPendingBudgetApproval: true,
	StatusForRecApproval:        true,
	StatusRecApproved:           true,
	StatusForFinalApproval:      true,
	StatusFinalApproved:         true,
	StatusForServing:            true,
	StatusForPosting:            true,
	StatusPosted:                true,
	StatusDisapproved:           true,
	StatusCancelled:             true,
}

var terminalStatuses = map[Status]bool{
	StatusDisapproved: true,
	StatusCancelled:   true,
}

// pendingStatuses 等待某人处理的状态
var pendingStatuses = []Status{
	StatusForReview,
	StatusPendingBudgetApproval,
	StatusForRecApproval,
	StatusForFinalApproval,
	StatusFinalApproved,
	StatusForServing,
	StatusForPosting,
}

// IsValid 是否为合法状态
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal 是否终态; POSTED 在确认收货后才结束, 由 Request.IsClosed 判断
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsPending 是否处于待处理状态
func (s Status) IsPending() bool {
	for _, p := range pendingStatuses {
		if p == s {
			return true
		}
	}
	return false
}

// String 返回状态字符串
func (s Status) String() string {
	return string(s)
}

// PendingStatuses 返回待处理状态列表
func PendingStatuses() []Status {
	out := make([]Status, len(pendingStatuses))
	copy(out, pendingStatuses)
	return out
}

// ApprovalStatus 审批子状态
type ApprovalStatus string

const (
	ApprovalNone        ApprovalStatus = ""
	ApprovalPending     ApprovalStatus = "PENDING"
	ApprovalApproved    ApprovalStatus = "APPROVED"
	ApprovalDisapproved ApprovalStatus = "DISAPPROVED"
)

// Stage 审批环节
type Stage string

const (
	StageNone   Stage = ""
	StageReview Stage = "REVIEW"
	StageBudget Stage = "BUDGET"
	StageRec    Stage = "REC"
	StageFinal  Stage = "FINAL"
)

// Action 物料申请操作
type Action string

const (
	ActionSubmit        Action = "submit"
	ActionReview        Action = "review"
	ActionApproveBudget Action = "approve_budget"
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionRelease       Action = "release"
	ActionServe         Action = "serve"
	ActionPost          Action = "post"
	ActionAcknowledge   Action = "acknowledge"
	ActionCancel        Action = "cancel"
)

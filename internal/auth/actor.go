package auth

import (
	"context"
	"strings"
)

// Role 用户角色
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleHR        Role = "HR"
	RoleManager   Role = "MANAGER"
	RoleAcctg     Role = "ACCTG"
	RolePurchaser Role = "PURCHASER"
	RoleUser      Role = "USER"
)

// ParseRole 解析角色, 未知角色按普通用户处理
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleHR, RoleManager, RoleAcctg, RolePurchaser:
		return r
	default:
		return RoleUser
	}
}

// Capability 能力, 替代按员工编号硬编码的特权判断
type Capability string

const (
	CapCrossUnitApprove Capability = "cross_unit_approve"
	CapStoreUseReview   Capability = "store_use_review"
	CapBudgetApprove    Capability = "budget_approve"
	CapMRSCoordinate    Capability = "mrs_coordinate"
	CapMRSPost          Capability = "mrs_post"
	CapAssetAccounting  Capability = "asset_accounting"
	CapAssetManage      Capability = "asset_manage"
	CapViewAllRequests  Capability = "view_all_requests"
)

// AllCapabilities 全部已知能力
var AllCapabilities = []Capability{
	CapCrossUnitApprove,
	CapStoreUseReview,
	CapBudgetApprove,
	CapMRSCoordinate,
	CapMRSPost,
	CapAssetAccounting,
	CapAssetManage,
	CapViewAllRequests,
}

// IsKnownCapability 判断能力是否已定义
func IsKnownCapability(c Capability) bool {
	for _, known := range AllCapabilities {
		if known == c {
			return true
		}
	}
	return false
}

// Actor 当前操作人
type Actor struct {
	EmployeeID     string
	Name           string
	Role           Role
	BusinessUnitID string
	DepartmentID   string
	IsRDHMRS       bool
	Capabilities   map[Capability]bool
}

// Has 判断是否拥有某项能力
func (a Actor) Has(c Capability) bool {
	return a.Capabilities[c]
}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanActOnUnit 是否可以操作指定业务单元的数据
func (a Actor) CanActOnUnit(businessUnitID string) bool {
	return a.BusinessUnitID == businessUnitID || a.Has(CapCrossUnitApprove)
}

type actorKey struct{}

// WithActor 将操作人写入 context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext 从 context 读取操作人
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

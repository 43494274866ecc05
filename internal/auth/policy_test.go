package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mautops/rdrealty-lms/internal/auth"
	"github.com/mautops/rdrealty-lms/internal/config"
	"github.com/stretchr/testify/assert"
)

type stubGrantStore struct {
	grants map[string]auth.Capability
	err    error
}

func (s *stubGrantStore) HasGrant(_ context.Context, employeeID string, c auth.Capability, _ string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.grants[employeeID] == c, nil
}

func testPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{
		RoleCapabilities: map[string][]string{
			"admin": {"cross_unit_approve", "view_all_requests"},
			"acctg": {"mrs_post"},
		},
		Grants: []config.GrantConfig{
			{EmployeeID: "C-002", Capabilities: []string{"cross_unit_approve"}},
			{EmployeeID: "R-033", Capabilities: []string{"store_use_review", "not_a_capability"}},
		},
		ExcludedEmployeeIDs: []string{"T-123", "admin", " "},
	}
}

// TestPolicy_RoleCapabilities 测试按角色授予能力
func TestPolicy_RoleCapabilities(t *testing.T) {
	p := auth.NewPolicy(testPolicyConfig())

	admin := p.NewActor(context.Background(), auth.Identity{EmployeeID: "A-1", Role: auth.RoleAdmin})
	assert.True(t, admin.Has(auth.CapCrossUnitApprove))
	assert.True(t, admin.Has(auth.CapViewAllRequests))
	assert.False(t, admin.Has(auth.CapMRSPost))

	user := p.NewActor(context.Background(), auth.Identity{EmployeeID: "U-1", Role: auth.RoleUser})
	assert.Empty(t, user.Capabilities)
}

// TestPolicy_ExplicitGrants 测试显式授权替代硬编码员工编号
func TestPolicy_ExplicitGrants(t *testing.T) {
	p := auth.NewPolicy(testPolicyConfig())

	crossUnit := p.NewActor(context.Background(), auth.Identity{EmployeeID: "C-002", Role: auth.RoleManager})
	assert.True(t, crossUnit.Has(auth.CapCrossUnitApprove))
	assert.True(t, crossUnit.CanActOnUnit("BU-OTHER"))

	reviewer := p.NewActor(context.Background(), auth.Identity{EmployeeID: "R-033", Role: auth.RoleUser})
	assert.True(t, reviewer.Has(auth.CapStoreUseReview))
	assert.Len(t, reviewer.Capabilities, 1, "unknown capability keys are ignored")
}

// TestPolicy_UserPermissions 测试用户记录上的权限列表
func TestPolicy_UserPermissions(t *testing.T) {
	p := auth.NewPolicy(testPolicyConfig())

	actor := p.NewActor(context.Background(), auth.Identity{
		EmployeeID:  "B-7",
		Role:        auth.RoleUser,
		Permissions: []string{"BUDGET_APPROVE"},
	})
	assert.True(t, actor.Has(auth.CapBudgetApprove))
}

// TestPolicy_GrantStore 测试外部授权存储
func TestPolicy_GrantStore(t *testing.T) {
	p := auth.NewPolicy(testPolicyConfig())
	p.SetGrantStore(&stubGrantStore{grants: map[string]auth.Capability{"P-9": auth.CapMRSCoordinate}})

	actor := p.NewActor(context.Background(), auth.Identity{EmployeeID: "P-9", Role: auth.RoleUser})
	assert.True(t, actor.Has(auth.CapMRSCoordinate))

	p.SetGrantStore(&stubGrantStore{err: errors.New("unavailable")})
	actor = p.NewActor(context.Background(), auth.Identity{EmployeeID: "C-002", Role: auth.RoleUser})
	assert.True(t, actor.Has(auth.CapCrossUnitApprove), "local grants survive store failure")
}

// TestPolicy_Exclusions 测试隐藏账号列表
func TestPolicy_Exclusions(t *testing.T) {
	p := auth.NewPolicy(testPolicyConfig())

	assert.Equal(t, []string{"T-123", "admin"}, p.ExcludedEmployeeIDs())

	// 返回副本, 调用方修改不影响策略
	ids := p.ExcludedEmployeeIDs()
	ids[0] = "U-1"
	assert.Equal(t, []string{"T-123", "admin"}, p.ExcludedEmployeeIDs())

	p.Update(config.PolicyConfig{ExcludedEmployeeIDs: []string{"SYS-1"}})
	assert.Equal(t, []string{"SYS-1"}, p.ExcludedEmployeeIDs())
}

// TestParseRole 测试角色解析
func TestParseRole(t *testing.T) {
	assert.Equal(t, auth.RoleAdmin, auth.ParseRole("admin"))
	assert.Equal(t, auth.RoleHR, auth.ParseRole(" HR "))
	assert.Equal(t, auth.RoleUser, auth.ParseRole("guest"))
}

// TestActorContext 测试 context 读写
func TestActorContext(t *testing.T) {
	_, ok := auth.ActorFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithActor(context.Background(), auth.Actor{EmployeeID: "U-1"})
	actor, ok := auth.ActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "U-1", actor.EmployeeID)
}

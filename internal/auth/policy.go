package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/mautops/rdrealty-lms/internal/config"
)

// GrantStore 外部显式授权存储
type GrantStore interface {
	HasGrant(ctx context.Context, employeeID string, capability Capability, businessUnitID string) (bool, error)
}

// Identity 构造 Actor 所需的身份信息
type Identity struct {
	EmployeeID     string
	Name           string
	Role           Role
	BusinessUnitID string
	DepartmentID   string
	IsRDHMRS       bool
	Permissions    []string // 用户记录上的能力列表
}

// Policy 能力策略表
// 能力来源: 角色表, 配置中的显式授权, 用户记录上的 permissions, 以及可选的外部授权存储
type Policy struct {
	mu         sync.RWMutex
	roles      map[Role]map[Capability]bool
	grants     map[string]map[Capability]bool
	excluded   []string
	grantStore GrantStore
}

// NewPolicy 根据配置创建能力策略
func NewPolicy(cfg config.PolicyConfig) *Policy {
	p := &Policy{}
	p.Update(cfg)
	return p
}

// Update 替换策略内容, 供配置热更新使用
func (p *Policy) Update(cfg config.PolicyConfig) {
	roles := make(map[Role]map[Capability]bool, len(cfg.RoleCapabilities))
	for role, caps := range cfg.RoleCapabilities {
		r := Role(strings.ToUpper(role))
		roles[r] = toCapabilitySet(caps)
	}

	grants := make(map[string]map[Capability]bool, len(cfg.Grants))
	for _, g := range cfg.Grants {
		if g.EmployeeID == "" {
			continue
		}
		set, ok := grants[g.EmployeeID]
		if !ok {
			set = make(map[Capability]bool)
			grants[g.EmployeeID] = set
		}
		for c := range toCapabilitySet(g.Capabilities) {
			set[c] = true
		}
	}

	excluded := make([]string, 0, len(cfg.ExcludedEmployeeIDs))
	for _, id := range cfg.ExcludedEmployeeIDs {
		if id = strings.TrimSpace(id); id != "" {
			excluded = append(excluded, id)
		}
	}

	p.mu.Lock()
	p.roles = roles
	p.grants = grants
	p.excluded = excluded
	p.mu.Unlock()
}

// SetGrantStore 设置外部授权存储
func (p *Policy) SetGrantStore(store GrantStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grantStore = store
}

// Capabilities 计算身份拥有的能力集合
func (p *Policy) Capabilities(ctx context.Context, id Identity) map[Capability]bool {
	p.mu.RLock()
	caps := make(map[Capability]bool)
	for c := range p.roles[id.Role] {
		caps[c] = true
	}
	for c := range p.grants[id.EmployeeID] {
		caps[c] = true
	}
	store := p.grantStore
	p.mu.RUnlock()

	for c := range toCapabilitySet(id.Permissions) {
		caps[c] = true
	}

	if store != nil {
		for _, c := range AllCapabilities {
			if caps[c] {
				continue
			}
			// 外部存储不可用时只使用本地能力
			if ok, err := store.HasGrant(ctx, id.EmployeeID, c, id.BusinessUnitID); err == nil && ok {
				caps[c] = true
			}
		}
	}

	return caps
}

// NewActor 构造操作人
func (p *Policy) NewActor(ctx context.Context, id Identity) Actor {
	return Actor{
		EmployeeID:     id.EmployeeID,
		Name:           id.Name,
		Role:           id.Role,
		BusinessUnitID: id.BusinessUnitID,
		DepartmentID:   id.DepartmentID,
		IsRDHMRS:       id.IsRDHMRS,
		Capabilities:   p.Capabilities(ctx, id),
	}
}

// ExcludedEmployeeIDs 返回隐藏账号列表的副本
func (p *Policy) ExcludedEmployeeIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.excluded))
	copy(out, p.excluded)
	return out
}

func toCapabilitySet(keys []string) map[Capability]bool {
	set := make(map[Capability]bool, len(keys))
	for _, k := range keys {
		c := Capability(strings.ToLower(strings.TrimSpace(k)))
		if IsKnownCapability(c) {
			set[c] = true
		}
	}
	return set
}

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache 授权结果缓存
type PermissionCache struct {
	cache *sync.Map
	ttl   time.Duration
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// NewPermissionCache 创建授权结果缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: &sync.Map{},
		ttl:   ttl,
	}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return false, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Delete(key)
		return false, false
	}

	return entry.value, true
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	c.cache.Store(key, &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete 删除缓存
func (c *PermissionCache) Delete(key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

// RelationClient 关系存储客户端, 由 OpenFGAClient 实现
type RelationClient interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
	SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error
	DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error
}

// businessUnitObject 能力授权挂在业务单元对象上
const businessUnitObject = "business_unit"

// OpenFGAGrantStore 基于 OpenFGA 元组的显式授权存储, 实现 GrantStore
// 元组形如 user:<employee>#<capability>@business_unit:<id>
type OpenFGAGrantStore struct {
	client RelationClient
	cache  *PermissionCache
}

// NewOpenFGAGrantStore 创建带缓存的授权存储
func NewOpenFGAGrantStore(client RelationClient, cache *PermissionCache) *OpenFGAGrantStore {
	return &OpenFGAGrantStore{
		client: client,
		cache:  cache,
	}
}

func grantCacheKey(employeeID string, capability Capability, businessUnitID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", employeeID, capability, businessUnitObject, businessUnitID)
}

// HasGrant 检查是否被授予能力(带缓存)
func (s *OpenFGAGrantStore) HasGrant(ctx context.Context, employeeID string, capability Capability, businessUnitID string) (bool, error) {
	key := grantCacheKey(employeeID, capability, businessUnitID)
	if value, found := s.cache.Get(key); found {
		return value, nil
	}

	allowed, err := s.client.CheckPermission(ctx, employeeID, string(capability), businessUnitObject, businessUnitID)
	if err != nil {
		return false, err
	}

	s.cache.Set(key, allowed)
	return allowed, nil
}

// Grant 授予能力并清除缓存
func (s *OpenFGAGrantStore) Grant(ctx context.Context, employeeID string, capability Capability, businessUnitID string) error {
	if err := s.client.SetRelation(ctx, employeeID, string(capability), businessUnitObject, businessUnitID); err != nil {
		return err
	}
	s.cache.Delete(grantCacheKey(employeeID, capability, businessUnitID))
	return nil
}

// Revoke 撤销能力并清除缓存
func (s *OpenFGAGrantStore) Revoke(ctx context.Context, employeeID string, capability Capability, businessUnitID string) error {
	if err := s.client.DeleteRelation(ctx, employeeID, string(capability), businessUnitObject, businessUnitID); err != nil {
		return err
	}
	s.cache.Delete(grantCacheKey(employeeID, capability, businessUnitID))
	return nil
}

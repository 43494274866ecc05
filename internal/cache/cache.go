// Package cache 提供看板计数等短期数据的缓存存储
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Store 缓存存储接口, 值以 JSON 编码保存
type Store interface {
	// Get 读取缓存并解码到 dest, 未命中返回 false
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// DeletePrefix 删除指定前缀的全部键
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key 拼接缓存键
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// MemoryStore 进程内缓存
type MemoryStore struct {
	entries *sync.Map
}

// memoryEntry 缓存条目
type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore 创建进程内缓存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: &sync.Map{}}
}

// Get 获取缓存
func (s *MemoryStore) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	val, found := s.entries.Load(key)
	if !found {
		return false, nil
	}

	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		// 已过期
		s.entries.Delete(key)
		return false, nil
	}

	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set 设置缓存, ttl 为 0 表示不过期
func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := &memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries.Store(key, entry)
	return nil
}

// DeletePrefix 删除指定前缀的键
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.entries.Range(func(key, _ interface{}) bool {
		if strings.HasPrefix(key.(string), prefix) {
			s.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Clear 清空缓存
func (s *MemoryStore) Clear() {
	s.entries.Range(func(key, _ interface{}) bool {
		s.entries.Delete(key)
		return true
	})
}

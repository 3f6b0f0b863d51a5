package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore 内存版 KeyValueStore，用于测试和本地开发。
// 支持按路径预置数据、预置错误和调用记录，
// 错误同样在边界处分类，行为与 RedisStore 保持一致。
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]json.RawMessage
	errors  map[string]error
	calls   []string
	delay   time.Duration
	healthy bool
	closed  bool
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]json.RawMessage),
		errors:  make(map[string]error),
		healthy: true,
	}
}

// Set 预置一条原始 JSON 数据
func (m *MemoryStore) Set(path string, raw json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[path] = raw
	delete(m.errors, path)
}

// SetJSON 序列化任意对象后预置到指定路径
func (m *MemoryStore) SetJSON(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Set(path, raw)
	return nil
}

// FailWith 预置指定路径的读取错误
func (m *MemoryStore) FailWith(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[path] = err
	delete(m.values, path)
}

// Delete 移除指定路径的数据
func (m *MemoryStore) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, path)
	delete(m.errors, path)
}

// SetDelay 设置每次读取的模拟延迟
func (m *MemoryStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetHealthy 设置健康状态
func (m *MemoryStore) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Get 实现 KeyValueStore 接口
func (m *MemoryStore) Get(ctx context.Context, path string) (Snapshot, error) {
	m.mu.Lock()
	m.calls = append(m.calls, path)
	delay := m.delay
	scriptedErr := m.errors[path]
	raw, ok := m.values[path]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, NewError(KindTransient, path, ctx.Err())
		}
	}

	if scriptedErr != nil {
		return nil, NewError(Classify(scriptedErr), path, scriptedErr)
	}

	if !ok {
		return AbsentSnapshot(), nil
	}

	return NewSnapshot(raw), nil
}

// Name 实现 KeyValueStore 接口
func (m *MemoryStore) Name() string {
	return "memory"
}

// IsHealthy 实现 KeyValueStore 接口
func (m *MemoryStore) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && !m.closed
}

// Close 实现 KeyValueStore 接口
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls 返回全部读取记录（按调用顺序）
func (m *MemoryStore) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回指定路径被读取的次数
func (m *MemoryStore) CallCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.calls {
		if p == path {
			count++
		}
	}
	return count
}

// ResetCalls 清空调用记录
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

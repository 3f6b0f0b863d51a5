package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ThrottleConfig 读取间隔控制配置
type ThrottleConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" json:"min_interval"` // 相邻两次读取的最小间隔
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`           // 是否启用
}

// DefaultThrottleConfig 默认间隔控制配置
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MinInterval: 50 * time.Millisecond,
		Enabled:     true,
	}
}

// ThrottledStore 读取间隔控制装饰器。
// 批量历史查询会在短时间内发出大量读取，这里保证相邻请求之间
// 至少间隔 MinInterval，配合分块并发共同约束对远端存储的压力。
type ThrottledStore struct {
	base   KeyValueStore
	config ThrottleConfig

	mu   sync.Mutex
	next time.Time // 下一次允许发出请求的时间
}

// NewThrottledStore 创建间隔控制装饰器
func NewThrottledStore(base KeyValueStore, config *ThrottleConfig) *ThrottledStore {
	cfg := DefaultThrottleConfig()
	if config != nil {
		cfg = *config
	}
	return &ThrottledStore{
		base:   base,
		config: cfg,
	}
}

// Get 实现带间隔控制的快照读取
func (t *ThrottledStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if !t.config.Enabled || t.config.MinInterval <= 0 {
		return t.base.Get(ctx, path)
	}

	if err := t.reserve(ctx); err != nil {
		return nil, NewError(KindTransient, path, err)
	}

	return t.base.Get(ctx, path)
}

// reserve 占用一个发送窗口，必要时等待
func (t *ThrottledStore) reserve(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	wait := t.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	t.next = now.Add(wait + t.config.MinInterval)
	t.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name 实现 KeyValueStore 接口
func (t *ThrottledStore) Name() string {
	return fmt.Sprintf("Throttled(%s)", t.base.Name())
}

// IsHealthy 实现 KeyValueStore 接口
func (t *ThrottledStore) IsHealthy() bool {
	return t.base.IsHealthy()
}

// Close 实现 KeyValueStore 接口
func (t *ThrottledStore) Close() error {
	return t.base.Close()
}

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"setpulse/pkg/logger"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name        string        `mapstructure:"name" json:"name"`                   // 熔断器名称
	MaxRequests uint32        `mapstructure:"max_requests" json:"max_requests"`   // 半开状态下的最大请求数
	Interval    time.Duration `mapstructure:"interval" json:"interval"`           // 统计窗口时间
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`             // 熔断器打开后的超时时间
	ReadyToTrip uint32        `mapstructure:"ready_to_trip" json:"ready_to_trip"` // 触发熔断的连续失败次数阈值
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`             // 是否启用熔断器
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:        "SnapshotStore",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// BreakerStats 熔断器统计信息
type BreakerStats struct {
	TotalRequests     int64     `json:"total_requests"`
	SuccessfulRequest int64     `json:"successful_requests"`
	FailedRequests    int64     `json:"failed_requests"`
	LastFailure       time.Time `json:"last_failure"`
}

// BreakerStore 熔断器装饰器。
// 使用 sony/gobreaker 包住底层存储的读取，连续传输失败时快速失败，
// 避免每次页面请求都等到底层超时。
type BreakerStore struct {
	base   KeyValueStore
	cb     *gobreaker.CircuitBreaker
	config BreakerConfig
	log    *logrus.Entry

	mu    sync.RWMutex
	stats BreakerStats
}

// NewBreakerStore 创建熔断器装饰器
func NewBreakerStore(base KeyValueStore, config *BreakerConfig) *BreakerStore {
	cfg := DefaultBreakerConfig()
	if config != nil {
		cfg = *config
	}

	log := logger.WithComponent("store_breaker")

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ReadyToTrip
		},
		// 权限拒绝表示"该可选数据源不可访问"，不代表存储本身故障，
		// 不计入熔断失败，否则一个受限类别会拖垮其它类别的读取。
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermissionDenied(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &BreakerStore{
		base:   base,
		cb:     gobreaker.NewCircuitBreaker(settings),
		config: cfg,
		log:    log,
	}
}

// Get 实现带熔断的快照读取
func (b *BreakerStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if !b.config.Enabled {
		return b.base.Get(ctx, path)
	}

	b.mu.Lock()
	b.stats.TotalRequests++
	b.mu.Unlock()

	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.base.Get(ctx, path)
	})
	b.handleResult(err)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, NewError(KindTransient, path, err)
		}
		return nil, err
	}

	snap, ok := result.(Snapshot)
	if !ok {
		wrapped := NewError(KindUnknown, path, fmt.Errorf("circuit breaker returned unexpected type %T", result))
		b.handleResult(wrapped)
		return nil, wrapped
	}

	return snap, nil
}

// handleResult 更新统计信息
func (b *BreakerStore) handleResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.stats.FailedRequests++
		b.stats.LastFailure = time.Now()
	} else {
		b.stats.SuccessfulRequest++
	}
}

// Name 实现 KeyValueStore 接口
func (b *BreakerStore) Name() string {
	return fmt.Sprintf("CircuitBreaker(%s)", b.base.Name())
}

// IsHealthy 熔断器打开状态视为不健康
func (b *BreakerStore) IsHealthy() bool {
	if !b.config.Enabled {
		return b.base.IsHealthy()
	}
	return b.cb.State() != gobreaker.StateOpen && b.base.IsHealthy()
}

// Close 实现 KeyValueStore 接口
func (b *BreakerStore) Close() error {
	return b.base.Close()
}

// State 获取熔断器当前状态
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

// Stats 获取熔断器统计信息
func (b *BreakerStore) Stats() BreakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Status 返回用于监控端点的状态信息
func (b *BreakerStore) Status() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := b.cb.Counts()

	return map[string]interface{}{
		"decorator_type": "CircuitBreaker",
		"base_store":     b.base.Name(),
		"enabled":        b.config.Enabled,
		"state":          b.cb.State().String(),
		"counts": map[string]interface{}{
			"requests":             counts.Requests,
			"total_successes":      counts.TotalSuccesses,
			"total_failures":       counts.TotalFailures,
			"consecutive_failures": counts.ConsecutiveFailures,
		},
		"stats": map[string]interface{}{
			"total_requests":      b.stats.TotalRequests,
			"successful_requests": b.stats.SuccessfulRequest,
			"failed_requests":     b.stats.FailedRequests,
			"last_failure":        b.stats.LastFailure,
		},
	}
}

package store

import (
	"context"
	"encoding/json"
)

// Snapshot 一次读取的结果。
// 键不存在时 Exists 返回 false，此时 Value 返回 nil。
type Snapshot interface {
	Exists() bool
	Value() json.RawMessage
}

// KeyValueStore 定义了远端键值存储的读取边界。
// 所有上层读取组件（ResilientFetcher、历史查询引擎）都只依赖此接口，
// 存储句柄在进程启动时构造一次并显式注入，不使用包级单例。
type KeyValueStore interface {
	// Get 读取指定路径的快照。键不存在不是错误；
	// 传输/权限失败以 *Error 返回，错误分类在存储边界完成。
	Get(ctx context.Context, path string) (Snapshot, error)

	// Name 返回存储实现的名称，例如 "redis" 或 "memory"。
	Name() string

	// IsHealthy 检查存储的健康状态
	IsHealthy() bool

	// Close 关闭存储连接并释放资源
	Close() error
}

// rawSnapshot 是 Snapshot 的通用实现
type rawSnapshot struct {
	raw    json.RawMessage
	exists bool
}

func (s rawSnapshot) Exists() bool {
	return s.exists
}

func (s rawSnapshot) Value() json.RawMessage {
	if !s.exists {
		return nil
	}
	return s.raw
}

// NewSnapshot 构造一个存在的快照
func NewSnapshot(raw json.RawMessage) Snapshot {
	return rawSnapshot{raw: raw, exists: true}
}

// AbsentSnapshot 构造一个"键不存在"的快照
func AbsentSnapshot() Snapshot {
	return rawSnapshot{}
}

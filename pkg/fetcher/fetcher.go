package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"setpulse/pkg/logger"
	"setpulse/pkg/store"
)

// Fetcher 是所有上层数据读取的基础原语。
// 单路径 Get 负责错误分类后的传播策略；GetWithFallback 在主路径
// 无有效数据时串行尝试回退路径，整体上宁可返回 nil 也不让
// 页面渲染侧看到异常。
type Fetcher struct {
	kv  store.KeyValueStore
	log *logrus.Entry
}

// New 创建 Fetcher，存储句柄由调用方注入
func New(kv store.KeyValueStore) *Fetcher {
	return &Fetcher{
		kv:  kv,
		log: logger.WithComponent("fetcher"),
	}
}

// Store 返回底层存储句柄
func (f *Fetcher) Store() store.KeyValueStore {
	return f.kv
}

// Get 读取单个路径。
//   - 键不存在返回 (nil, nil)；
//   - 权限类失败吞掉并告警，同样返回 (nil, nil)——可选数据源
//     不可访问不是系统故障；
//   - 其它失败包装为带路径的 *store.Error 向上传播。
func (f *Fetcher) Get(ctx context.Context, path string) (json.RawMessage, error) {
	snap, err := f.kv.Get(ctx, path)
	if err != nil {
		if store.IsPermissionDenied(err) {
			logger.WithPath("fetcher", path).WithError(err).Warn("Optional data source inaccessible, returning empty")
			return nil, nil
		}

		var se *store.Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, store.NewError(store.KindUnknown, path, err)
	}

	if !snap.Exists() {
		return nil, nil
	}

	return snap.Value(), nil
}

// GetWithFallback 主/回退两级读取。
// 主路径的结果只有"有意义"（非空且非空集合）才被接受；
// 主路径出错或无数据时串行尝试回退路径，绝不并发竞速。
// 两级都失败时返回 nil 而不是错误。fallback 为空串表示无回退可用。
func (f *Fetcher) GetWithFallback(ctx context.Context, primary, fallback string) json.RawMessage {
	raw, err := f.Get(ctx, primary)
	if err != nil {
		f.log.WithError(err).WithField("path", primary).Warn("Primary read failed, trying fallback")
	} else if IsMeaningful(raw) {
		return raw
	}

	if fallback == "" {
		return nil
	}

	raw, err = f.Get(ctx, fallback)
	if err != nil {
		f.log.WithError(err).WithField("path", fallback).Warn("Fallback read failed")
		return nil
	}
	if IsMeaningful(raw) {
		f.log.WithFields(logrus.Fields{
			"primary":  primary,
			"fallback": fallback,
		}).Debug("Served from fallback path")
		return raw
	}

	return nil
}

// IsMeaningful 判断一段原始 JSON 是否包含有效数据。
// 存储端有时会写入 {} 或 [] 而不是省略键，这类"存在但为空"的
// 负载与键不存在同等对待。
func IsMeaningful(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}

	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return false
	case trimmed[0] == '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return false
		}
		return len(m) > 0
	case trimmed[0] == '[':
		var a []json.RawMessage
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return false
		}
		return len(a) > 0
	}

	// 数字、字符串、布尔等标量负载都算有效
	return true
}

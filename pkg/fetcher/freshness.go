package fetcher

import (
	"fmt"
	"time"
)

// DefaultMaxAge 数据新鲜度的默认上限
const DefaultMaxAge = 1 * time.Hour

// IsFresh 判断毫秒时间戳是否仍在 maxAge 之内。
// 新鲜度总是相对调用方给定的上限判断，本层不做任何内部过期。
func IsFresh(timestampMillis int64, maxAge time.Duration) bool {
	return IsFreshAt(timestampMillis, maxAge, time.Now())
}

// IsFreshAt 同 IsFresh，注入当前时间便于测试
func IsFreshAt(timestampMillis int64, maxAge time.Duration, now time.Time) bool {
	if timestampMillis <= 0 {
		return false
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	captured := time.UnixMilli(timestampMillis)
	return now.Sub(captured) < maxAge
}

// Age 返回毫秒时间戳距今的人类可读年龄，
// 按整数向下取整分桶：分钟 < 60 用分钟，小时 < 24 用小时，否则用天。
func Age(timestampMillis int64) string {
	return AgeAt(timestampMillis, time.Now())
}

// AgeAt 同 Age，注入当前时间便于测试
func AgeAt(timestampMillis int64, now time.Time) string {
	elapsed := now.Sub(time.UnixMilli(timestampMillis))
	if elapsed < 0 {
		elapsed = 0
	}

	minutes := int64(elapsed.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}

	hours := int64(elapsed.Hours())
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}

	return fmt.Sprintf("%dd ago", hours/24)
}

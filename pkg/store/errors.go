package store

import (
	"errors"
	"strings"
)

// ErrorKind 定义存储错误的分类。
// 底层 SDK 没有稳定的错误码约定，只能按错误消息分类；
// 这里把字符串匹配收敛在存储边界，上层组件只对 Kind 做判断。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota // 未知错误
	KindAbsent                   // 键不存在（仅用于显式构造，正常读取用 Snapshot.Exists 表达）
	KindPermission               // 权限/认证失败，可选数据源不可访问
	KindTransient                // 瞬时传输错误，可重试
)

// 错误代码常量
const (
	CodeFetchError   = "FETCH_ERROR"
	CodeUnknownError = "UNKNOWN_ERROR"
	CodePermission   = "PERMISSION_DENIED"
)

// Error 携带路径信息的存储错误
type Error struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.Code + ": " + e.Message + " (path=" + e.Path + ")"
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 按分类构造存储错误
func NewError(kind ErrorKind, path string, cause error) *Error {
	msg := "unknown storage failure"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Kind:    kind,
		Code:    codeFor(kind),
		Path:    path,
		Message: msg,
		Cause:   cause,
	}
}

func codeFor(kind ErrorKind) string {
	switch kind {
	case KindPermission:
		return CodePermission
	case KindTransient:
		return CodeFetchError
	default:
		return CodeUnknownError
	}
}

// Classify 根据错误内容分类错误级别。
// 与底层 SDK 的契约只有错误消息文本，这里集中维护匹配规则。
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	msg := strings.ToLower(err.Error())

	// 权限/认证类错误 - 可选数据源被拒绝访问
	switch {
	case strings.Contains(msg, "permission denied"):
		return KindPermission
	case strings.Contains(msg, "permission_denied"):
		return KindPermission
	case strings.Contains(msg, "unauthorized"):
		return KindPermission
	case strings.Contains(msg, "access denied"):
		return KindPermission
	case strings.Contains(msg, "noperm"):
		return KindPermission
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return KindPermission
	}

	// 瞬时传输错误 - 可重试
	switch {
	case strings.Contains(msg, "timeout"):
		return KindTransient
	case strings.Contains(msg, "connection refused"):
		return KindTransient
	case strings.Contains(msg, "connection reset"):
		return KindTransient
	case strings.Contains(msg, "network is unreachable"):
		return KindTransient
	case strings.Contains(msg, "temporary failure"):
		return KindTransient
	case strings.Contains(msg, "broken pipe"):
		return KindTransient
	case strings.Contains(msg, "loading"): // redis 启动恢复期
		return KindTransient
	}

	return KindUnknown
}

// IsPermissionDenied 判断是否是权限类错误
func IsPermissionDenied(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindPermission
	}
	return false
}

// IsTransient 判断是否是瞬时传输错误
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return false
}

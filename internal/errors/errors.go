// Package errors defines the coded error type shared by every Agentica
// component. A Code selects registered defaults (category, severity, HTTP
// status, retry and alert flags); the HTTP layer renders it as
// {"detail", "error_code"}.
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
)

// Error 是携带错误码的统一错误。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	alert    *bool
}

// Option 调整单个错误实例。
type Option func(*Error)

// WithMetadata 附加键值信息，告警事件会携带这些字段。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = map[string]string{}
		}
		e.metadata[key] = value
	}
}

// WithAlert 覆盖错误码默认的告警开关。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = &alert }
}

// New 创建错误，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf 以格式化字符串创建错误。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 以错误码包装底层错误。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，使 errors.Is 能穿透包装链。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Detail 是写入响应 detail 字段的文本，嵌套的统一错误不带错误码前缀。
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return e.message
	}
	var inner *Error
	if stdErrors.As(e.cause, &inner) {
		return e.message + ": " + inner.Detail()
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Category() Category { return AttributesOf(e.Code()).Category }

func (e *Error) Severity() Severity { return AttributesOf(e.Code()).Severity }

func (e *Error) Retryable() bool { return e != nil && AttributesOf(e.code).Retryable }

// ShouldAlert 返回是否需要告警，WithAlert 优先于错误码默认值。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return AttributesOf(e.code).Alert
}

// From 从错误链中取出统一错误。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误码，非统一错误返回 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsCode 判断错误链中是否含有指定错误码。
func IsCode(err error, code Code) bool {
	return stdErrors.Is(err, &Error{code: code})
}

func CategoryOf(err error) Category {
	if e, ok := From(err); ok {
		return e.Category()
	}
	return CategoryInternal
}

func RetryableError(err error) bool {
	e, ok := From(err)
	return ok && e.Retryable()
}

func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

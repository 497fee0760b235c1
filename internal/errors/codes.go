package errors

import (
	"net/http"
	"sync"
)

// Code 是对外返回的 error_code。
type Code string

// Category 是错误大类，决定默认的 HTTP 状态码。
type Category string

// Severity 用于告警分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CategoryInvalidInput        Category = "InvalidInput"
	CategoryConflict            Category = "Conflict"
	CategoryNotFound            Category = "NotFound"
	CategoryUpstreamUnavailable Category = "UpstreamUnavailable"
	CategoryInternal            Category = "Internal"
	CategoryNotImplemented      Category = "NotImplemented"
)

// 平台通用错误码，业务包通过 Register 追加自己的错误码。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInternal              Code = "INTERNAL"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeUpstreamUnavailable   Code = "UPSTREAM_UNAVAILABLE"
	CodeTimeout               Code = "TIMEOUT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
)

// Attributes 是错误码的默认行为。Status 非零时覆盖按 Category 推导的状态码。
type Attributes struct {
	Message   string
	Category  Category
	Severity  Severity
	Status    int
	Retryable bool
	Alert     bool
}

var categoryStatus = map[Category]int{
	CategoryInvalidInput:        http.StatusBadRequest,
	CategoryConflict:            http.StatusConflict,
	CategoryNotFound:            http.StatusNotFound,
	CategoryUpstreamUnavailable: http.StatusBadGateway,
	CategoryNotImplemented:      http.StatusNotImplemented,
	CategoryInternal:            http.StatusInternalServerError,
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:         {Message: "unknown error", Category: CategoryInternal, Severity: SeverityCritical, Alert: true},
		CodeInternal:        {Message: "internal error", Category: CategoryInternal, Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument: {Message: "invalid argument", Category: CategoryInvalidInput, Severity: SeverityInfo},
		CodeNotFound:        {Message: "resource not found", Category: CategoryNotFound, Severity: SeverityInfo},
		CodeConflict:        {Message: "resource conflict", Category: CategoryConflict, Severity: SeverityWarning},
		CodeUpstreamUnavailable: {
			Message: "upstream service unavailable", Category: CategoryUpstreamUnavailable,
			Severity: SeverityWarning, Retryable: true, Alert: true,
		},
		CodeTimeout: {
			Message: "operation timed out", Category: CategoryUpstreamUnavailable,
			Severity: SeverityWarning, Status: http.StatusGatewayTimeout, Retryable: true, Alert: true,
		},
		// 外部依赖未配置时对应端点返回 503。
		CodeInitializationFailure: {
			Message: "service not initialized", Category: CategoryUpstreamUnavailable,
			Severity: SeverityWarning, Status: http.StatusServiceUnavailable, Retryable: true, Alert: true,
		},
		CodeStorageFailure: {
			Message: "storage failure", Category: CategoryInternal,
			Severity: SeverityCritical, Retryable: true, Alert: true,
		},
		CodeQueueFailure: {
			Message: "queue failure", Category: CategoryInternal,
			Severity: SeverityCritical, Retryable: true, Alert: true,
		},
	}
)

// Register 在包初始化阶段登记错误码，未指定 Category 时按 Internal 处理。
func Register(code Code, attr Attributes) {
	if attr.Category == "" {
		attr.Category = CategoryInternal
	}
	registryMu.Lock()
	registry[code] = attr
	registryMu.Unlock()
}

// AttributesOf 返回错误码属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// HTTPStatus 将任意 error 映射为 HTTP 状态码，非统一错误一律 500。
func HTTPStatus(err error) int {
	e, ok := From(err)
	if !ok {
		return http.StatusInternalServerError
	}
	attr := AttributesOf(e.code)
	if attr.Status != 0 {
		return attr.Status
	}
	if status, ok := categoryStatus[attr.Category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

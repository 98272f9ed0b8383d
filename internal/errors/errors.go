package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	// Local 表示错误在任何网络 I/O 之前产生。
	Local bool
}

const (
	CodeUnknown             Code = "UNKNOWN"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInvalidABI          Code = "INVALID_ABI"
	CodeUnknownMethod       Code = "UNKNOWN_METHOD"
	CodeInvalidAddress      Code = "INVALID_ADDRESS"
	CodeInvalidMnemonic     Code = "INVALID_MNEMONIC"
	CodeArgumentType        Code = "ARGUMENT_TYPE"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeNetwork             Code = "NETWORK"
	CodeTimeout             Code = "TIMEOUT"
	CodeReverted            Code = "REVERTED"
	CodeSubmission          Code = "SUBMISSION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeStorageFailure      Code = "STORAGE_FAILURE"
	CodeQueueFailure        Code = "QUEUE_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "unknown error",
			Severity: SeverityCritical,
		},
		CodeInvalidArgument: {
			Message:  "invalid argument",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeInvalidABI: {
			Message:  "invalid abi",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeUnknownMethod: {
			Message:  "method not found in abi",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeInvalidAddress: {
			Message:  "invalid address",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeInvalidMnemonic: {
			Message:  "invalid mnemonic",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeArgumentType: {
			Message:  "argument type mismatch",
			Severity: SeverityInfo,
			Local:    true,
		},
		CodeConstraintViolation: {
			Message:  "constraint violation",
			Severity: SeverityWarning,
			Local:    true,
		},
		CodeNetwork: {
			Message:   "network endpoint unreachable",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodeTimeout: {
			Message:   "transaction not confirmed in time",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodeReverted: {
			Message:  "transaction reverted",
			Severity: SeverityWarning,
		},
		CodeSubmission: {
			Message:  "transaction rejected by endpoint",
			Severity: SeverityWarning,
		},
		CodeNotFound: {
			Message:  "resource not found",
			Severity: SeverityInfo,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityCritical,
			Retryable: true,
		},
		CodeQueueFailure: {
			Message:   "queue failure",
			Severity:  SeverityCritical,
			Retryable: true,
		},
	}
)

// 与错误码一一对应的哨兵错误，可配合 errors.Is 使用。
var (
	ErrInvalidArgument     = New(CodeInvalidArgument, "")
	ErrInvalidABI          = New(CodeInvalidABI, "")
	ErrUnknownMethod       = New(CodeUnknownMethod, "")
	ErrInvalidAddress      = New(CodeInvalidAddress, "")
	ErrInvalidMnemonic     = New(CodeInvalidMnemonic, "")
	ErrArgumentType        = New(CodeArgumentType, "")
	ErrConstraintViolation = New(CodeConstraintViolation, "")
	ErrNetwork             = New(CodeNetwork, "")
	ErrTimeout             = New(CodeTimeout, "")
	ErrReverted            = New(CodeReverted, "")
	ErrSubmission          = New(CodeSubmission, "")
	ErrNotFound            = New(CodeNotFound, "")
)

// 元数据键。
const (
	MetaTxHash       = "tx_hash"
	MetaRevertReason = "revert_reason"
	MetaMethod       = "method"
	MetaArgument     = "argument"
	MetaNetwork      = "network"
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	severity  *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 指定错误是否可重试。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
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

// Newf 使用格式化信息创建错误。
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Meta 返回单个元数据值。
func (e *Error) Meta(key string) string {
	if e == nil {
		return ""
	}
	return e.metadata[key]
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// Local 判断错误是否在网络调用之前产生。
func (e *Error) Local() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Local
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}

// RevertReason 返回回滚错误携带的原因，没有时返回空字符串。
func RevertReason(err error) string {
	if e, ok := From(err); ok && e.Code() == CodeReverted {
		return e.Meta(MetaRevertReason)
	}
	return ""
}

// TxHash 返回错误携带的交易哈希。
func TxHash(err error) string {
	if e, ok := From(err); ok {
		return e.Meta(MetaTxHash)
	}
	return ""
}

// Annotate 返回附加了元数据的错误副本，原错误保持不变。非统一错误原样返回。
func Annotate(err error, key, value string) error {
	e, ok := From(err)
	if !ok {
		return err
	}
	clone := *e
	clone.metadata = e.Metadata()
	if clone.metadata == nil {
		clone.metadata = make(map[string]string, 1)
	}
	clone.metadata[key] = value
	return &clone
}

// Package errors provides the coded error type shared across the
// homedash runtime. Codes carry default severity, retry and alert
// behaviour so callers can branch on errors.Is without string checks.
package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code is the stable identifier of an error class.
type Code string

// Severity describes how serious an error is, for alerting and audit.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeConfigValidation      Code = "CONFIG_VALIDATION"
	CodeInstantiation         Code = "INSTANTIATION_FAILURE"
	CodeDuplicatePlugin       Code = "DUPLICATE_PLUGIN"
	CodePluginNotFound        Code = "PLUGIN_NOT_FOUND"
	CodeFetchFailure          Code = "FETCH_FAILURE"
	CodeReconciliation        Code = "RECONCILIATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
)

// Attributes provide default behaviour for an error code.
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo},
		CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning},
		CodeConfigValidation:      {Message: "plugin rejected its configuration", Severity: SeverityInfo},
		CodeInstantiation:         {Message: "no provider could build the plugin", Severity: SeverityWarning, Alert: true},
		CodeDuplicatePlugin:       {Message: "plugin id already registered", Severity: SeverityWarning},
		CodePluginNotFound:        {Message: "plugin not found", Severity: SeverityInfo},
		CodeFetchFailure:          {Message: "plugin data fetch failed", Severity: SeverityWarning, Retryable: true},
		CodeReconciliation:        {Message: "plugin reconciliation failed", Severity: SeverityWarning, Alert: true},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeTimeout:               {Message: "operation timed out", Severity: SeverityWarning, Retryable: true},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true},
	}
)

// Register adds or replaces the attributes for a code. Integration
// packages may call it during init.
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf returns the attributes for a code, falling back to the
// UNKNOWN attributes for unregistered codes.
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the coded error type used throughout the runtime.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option customises a new Error.
type Option func(*Error)

// WithMetadata attaches a key/value pair for logs and API responses.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New creates an error with the given code. An empty message falls
// back to the code's registered default.
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

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches errors by code so sentinel comparisons work.
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

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the human-readable message.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
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

// Retryable reports whether the error class is worth retrying.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

// Severity returns the error class severity.
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return AttributesOf(e.code).Severity
}

// From extracts a coded error from an error chain.
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

// CodeOf returns the code of any error, CodeUnknown when uncoded.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return stdErrors.Is(err, New(code, ""))
}

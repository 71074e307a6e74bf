// Package errcode provides layered error codes and the error kinds shared by every vectra component.
// Error code format: MMBBBB (MM = module code 2 digits, BBBB = business code 4 digits)
package errcode

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry, breaker and alerting decisions
type Kind string

const (
	KindUnknown        Kind = ""
	KindRateLimit      Kind = "rate_limit_exceeded"
	KindPoolTimeout    Kind = "pool_timeout"
	KindPoolExhausted  Kind = "pool_exhausted"
	KindOpenCircuit    Kind = "open_circuit"
	KindValidation     Kind = "validation"
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindServer         Kind = "server"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
)

// String returns the kind name
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// LayeredError hierarchical error code
// Supports: error chaining, dynamic messages, context data, kind classification, message keys
type LayeredError struct {
	module string                 // Module name (limiter, pool, backend)
	code   int                    // Complete error code (MMBBBB, e.g., 300001)
	msgKey string                 // Message key (e.g., "error.pool.timeout")
	msg    string                 // Default message
	kind   Kind                   // Error kind
	data   map[string]interface{} // context data
	cause  error                  // Original error (error chain)
}

// New Create hierarchical error codes
// moduleCode: Module code (10-99)
// businessCode: Business Code (0001-9999)
// module: module name (limiter, breaker, pool)
// msgKey: message key
// msg: Default message
// kind: error kind (optional, default KindUnknown)
func New(moduleCode, businessCode int, module, msgKey, msg string, kind ...Kind) *LayeredError {
	k := KindUnknown
	if len(kind) > 0 {
		k = kind[0]
	}
	return &LayeredError{
		module: module,
		code:   moduleCode*10000 + businessCode,
		msgKey: msgKey,
		msg:    msg,
		kind:   k,
		data:   make(map[string]interface{}),
	}
}

// Implement error interface
func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code gets error code
func (e *LayeredError) Code() int {
	return e.code
}

// Module Get module name
func (e *LayeredError) Module() string {
	return e.module
}

// MsgKey retrieves the message key
func (e *LayeredError) MsgKey() string {
	return e.msgKey
}

// Message returns the message without the cause
func (e *LayeredError) Message() string {
	return e.msg
}

// Kind returns the error kind
func (e *LayeredError) Kind() Kind {
	return e.kind
}

// Data returns the context data
func (e *LayeredError) Data() map[string]interface{} {
	return e.data
}

// Cause get original error
func (e *LayeredError) Cause() error {
	return e.cause
}

// Unwrap supports Go 1.13+ error chains
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// WithMsg replace error message (return new instance, do not modify original instance)
func (e *LayeredError) WithMsg(msg string) *LayeredError {
	clone := *e
	clone.msg = msg
	return &clone
}

// WithMsgf format replacement error message (return new instance)
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData add single context data (return new instance)
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// WithFields batch add context data (return new instance)
func (e *LayeredError) WithFields(fields map[string]interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	for k, v := range fields {
		clone.data[k] = v
	}
	return &clone
}

// WithKind overrides the kind (return new instance)
func (e *LayeredError) WithKind(kind Kind) *LayeredError {
	clone := *e
	clone.kind = kind
	return &clone
}

// Wrap Wraps the original error (returns a new instance)
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Wrapf wraps the original error and formats the message (return a new instance)
func (e *LayeredError) Wrapf(cause error, format string, args ...interface{}) *LayeredError {
	if cause == nil {
		return e.WithMsgf(format, args...)
	}
	clone := *e
	clone.cause = cause
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// Is implements errors.Is by comparing codes
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) cloneData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// String returns an erroneous string representation (for debugging)
func (e *LayeredError) String() string {
	if e.cause != nil {
		return fmt.Sprintf("LayeredError{code:%d, module:%s, kind:%s, msg:%s, cause:%v}",
			e.code, e.module, e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("LayeredError{code:%d, module:%s, kind:%s, msg:%s}",
		e.code, e.module, e.kind, e.msg)
}

// kinded is implemented by every error that carries a Kind
type kinded interface {
	Kind() Kind
}

// KindOf returns the first kind found in the error chain
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is a transient infrastructure failure
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindServer, KindPoolTimeout, KindConflict:
		return true
	}
	return false
}

// IsPermanent reports whether retrying err can never succeed
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindAuthentication, KindNotFound:
		return true
	}
	return false
}

// DataOf returns the context data of the first LayeredError in the chain
func DataOf(err error) map[string]interface{} {
	var le *LayeredError
	if errors.As(err, &le) {
		return le.Data()
	}
	return nil
}

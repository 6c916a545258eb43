package model

import (
	"errors"
	"fmt"
)

// ErrorKind buckets every error the engine can return. Callers branch on
// the kind for transport mapping and on the code for user messaging.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindConflict
	KindNotFound
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Stable machine-readable codes. These are part of the contract with the
// calling UI and must not change once shipped.
const (
	CodeInvalidCodeFormat     = "invalid_code_format"
	CodeInvalidCreditAmount   = "invalid_credit_amount"
	CodeInvalidEventType      = "invalid_event_type"
	CodeInvalidValidityWindow = "invalid_validity_window"
	CodeCodeExists            = "code_exists"
	CodePerUserCapReached     = "per_user_cap_reached"
	CodeGlobalCapReached      = "global_cap_reached"
	CodeInactive              = "inactive"
	CodeExpired               = "expired"
	CodeNotYetValid           = "not_yet_valid"
	CodeNotFound              = "not_found"
	CodePersistenceFailure    = "persistence_failure"
)

// Error is the single error type crossing the engine boundary. The Code
// is stable and machine-readable; the Message is for humans and may be
// localized by the caller.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message}
}

// Persistence wraps a store failure. The whole unit of work was rolled
// back, so the caller may retry the operation from scratch.
func Persistence(message string, cause error) *Error {
	return &Error{Kind: KindPersistence, Code: CodePersistenceFailure, Message: message, cause: cause}
}

// KindOf extracts the kind from any error in the chain, or zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf extracts the stable code from any error in the chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsConflict(err error) bool    { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }

// Package apperr is the error taxonomy shared by the workflow core and the HTTP layer.
//
// A Precondition error means the request can never succeed as issued (missing actor,
// unknown patient, invalid state transition). A Store error means the persistent store
// failed; the caller may retry, the core never does.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindPrecondition Kind = "precondition"
	KindStore        Kind = "store"
)

// Precondition codes.
const (
	CodeMissingActor       = "MISSING_ACTOR"
	CodePatientNotFound    = "PATIENT_NOT_FOUND"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeDoseNotFound       = "DOSE_NOT_FOUND"
	CodeNoActiveSession    = "NO_ACTIVE_SESSION"
	CodeSessionExists      = "SESSION_ALREADY_OPEN"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeProtocolExhausted  = "PROTOCOL_EXHAUSTED"
	CodeNotificationAbsent = "NOTIFICATION_NOT_FOUND"
)

// Store codes.
const (
	CodeStoreFailure = "STORE_FAILURE"
	CodeConflict     = "CONCURRENT_MODIFICATION"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by the store when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an optimistic update lost a race.
	ErrVersionConflict = errors.New("version conflict")
)

// Error is the application error carried across component boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Precondition creates a non-retryable error.
func Precondition(code, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Store wraps a store failure. Wrapping an existing *Error keeps its classification.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	code := CodeStoreFailure
	if errors.Is(err, ErrVersionConflict) {
		code = CodeConflict
	}
	return &Error{Kind: KindStore, Code: code, Message: op, Err: err}
}

// IsPrecondition reports whether err is a precondition failure.
func IsPrecondition(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindPrecondition
}

// IsStore reports whether err is a store failure.
func IsStore(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == KindStore
}

// Retryable reports whether a caller may retry the failed operation.
func Retryable(err error) bool {
	return IsStore(err)
}

// CodeOf returns the error code, or CodeStoreFailure for unclassified errors.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeStoreFailure
}

// HTTPStatus maps an error to a response status.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	if ae.Kind == KindStore {
		if ae.Code == CodeConflict {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	}
	switch ae.Code {
	case CodeMissingActor:
		return http.StatusUnauthorized
	case CodePatientNotFound, CodeSessionNotFound, CodeDoseNotFound, CodeNotificationAbsent:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}

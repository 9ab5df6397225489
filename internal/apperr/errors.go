/**
 * @description
 * This package defines the service-wide error taxonomy. Every error that
 * surfaces from a coordinator operation has been normalized into one of
 * these kinds by the execution wrapper before it reaches the HTTP boundary,
 * so handlers only ever translate kinds to status codes.
 *
 * @dependencies
 * - errors, fmt, net/http: Standard Go libraries.
 */

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the closed failure categories.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindLedger     Kind = "LEDGER"
	KindDecode     Kind = "DECODE"
	KindConflict   Kind = "CONFLICT"
	KindInternal   Kind = "INTERNAL"
)

// Error is the normalized application error.
type Error struct {
	Kind    Kind
	Message string
	// Reason carries the cleaned revert reason for ledger errors.
	Reason string
	Status int
	cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindLedger && e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Reason)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code clients should receive for this error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Validation builds a malformed-input error that never reached the ledger.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: http.StatusBadRequest}
}

// NotFound builds an entity-absent error (e.g. the ledger reports exists=false).
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

// Ledger builds a classified ledger execution/revert error carrying the
// cleaned revert reason.
func Ledger(reason string, cause error) *Error {
	return &Error{
		Kind:    KindLedger,
		Message: "ledger call reverted",
		Reason:  reason,
		Status:  http.StatusBadRequest,
		cause:   cause,
	}
}

// Decode builds a fatal decode error for malformed ledger tuples or unmapped
// status codes. Never retried.
func Decode(message string, cause error) *Error {
	return &Error{Kind: KindDecode, Message: message, Status: http.StatusInternalServerError, cause: cause}
}

// Conflict builds a duplication/conflict error surfaced by persistence.
func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Status: http.StatusConflict, cause: cause}
}

// Internal wraps anything unclassified with a default failure status.
func Internal(cause error) *Error {
	message := "internal error"
	if cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: KindInternal, Message: message, Status: http.StatusInternalServerError, cause: cause}
}

// From returns the *Error inside err, or nil when err carries none.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	appErr := From(err)
	return appErr != nil && appErr.Kind == kind
}

// Package apperr classifies domain errors into a small set of kinds, each
// carrying the HTTP status a transport layer should answer with.
package apperr

import (
	"net/http"

	"github.com/go-faster/errors"
)

// Kind is a coarse error category.
type Kind uint8

const (
	// KindInternal is the zero value: anything not explicitly classified.
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	// KindInconsistent reports a multi-step write whose outcome is unknown.
	KindInconsistent
	KindUnauthorized
	KindForbidden
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInconsistent:
		return "inconsistent"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code hint for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInconsistent:
		return http.StatusInternalServerError
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a user-facing message.
type Error struct {
	kind    Kind
	msg     string
	cause   error
	details map[string]string
}

// New returns a classified error. Package-level sentinels are built with New
// and compared with errors.Is.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies cause. The message is what users see; cause stays internal.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// WithDetails returns a copy of e carrying per-field details.
func (e *Error) WithDetails(details map[string]string) *Error {
	c := *e
	c.details = details
	return &c
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Kind implements Classified.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the user-facing message without the cause.
func (e *Error) Message() string { return e.msg }

// Details returns per-field details, if any.
func (e *Error) Details() map[string]string { return e.details }

// Classified is implemented by errors that know their kind. Typed domain
// errors (e.g. insufficient stock) implement it directly instead of
// wrapping an *Error.
type Classified interface {
	error
	Kind() Kind
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// PublicMessage returns the message safe to show to clients. Internal and
// inconsistent errors never expose their text.
func PublicMessage(err error) string {
	var c Classified
	if !errors.As(err, &c) {
		return "internal server error"
	}
	switch c.Kind() {
	case KindInternal:
		return "internal server error"
	case KindInconsistent:
		return "checkout outcome is unknown, please verify your orders before retrying"
	}
	var e *Error
	if errors.As(err, &e) && e.kind == c.Kind() {
		return e.msg
	}
	return c.Error()
}

// DetailsOf returns the details attached to the first *Error in err's chain.
func DetailsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.details
	}
	return nil
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

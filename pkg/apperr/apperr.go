// Package apperr is the error taxonomy shared by every component. Components
// fail fast with one of these kinds; only the HTTP boundary maps kinds to
// status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error for the boundary layer.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindConflict        Kind = "CONFLICT"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindInternal        Kind = "INTERNAL"
)

// Error is an application error carrying its kind and optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two application errors of the same kind, so
// sentinel values such as document.ErrNotFound work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newErr(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newErr(KindForbidden, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return newErr(KindInvalidArgument, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newErr(KindConflict, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newErr(KindUnauthorized, format, args...)
}

func Unavailable(format string, args ...interface{}) *Error {
	return newErr(KindUnavailable, format, args...)
}

// Wrap attaches a kind and message to a lower-level error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf returns the kind of the first application error in the chain.
// Anything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as the standard failure envelope. Internal errors are
// not echoed to the client.
func Respond(c *gin.Context, err error) {
	kind := KindOf(err)
	c.AbortWithStatusJSON(HTTPStatus(kind), gin.H{"success": false, "code": string(kind), "message": PublicMessage(err)})
}

// PublicMessage is the client-safe text for err.
func PublicMessage(err error) string {
	var e *Error
	if KindOf(err) != KindInternal && errors.As(err, &e) {
		return e.Message
	}
	return "Server error"
}

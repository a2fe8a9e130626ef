// Package apperr defines the error kinds shared by every domain service and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrSlotConflict = errors.New("slot conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUniqueness   = errors.New("uniqueness violation")
)

// Error carries a kind, a client-safe message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(ErrValidation, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(ErrNotFound, format, args...)
}

func SlotConflict(format string, args ...interface{}) *Error {
	return newf(ErrSlotConflict, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return newf(ErrInvalidState, format, args...)
}

func Uniqueness(format string, args ...interface{}) *Error {
	return newf(ErrUniqueness, format, args...)
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind error, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSlotConflict),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrUniqueness):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an *echo.HTTPError. Internal errors keep their
// cause as Internal so the logger middleware records it while the client only
// sees a generic message.
func HTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	var ae *Error
	if errors.As(err, &ae) {
		return echo.NewHTTPError(status, ae.Message)
	}
	return echo.NewHTTPError(status, err.Error())
}

// Package apperr classifies domain errors and maps them onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindGateway      Kind = "gateway"
	KindPersistence  Kind = "persistence"
	KindConfig       Kind = "config"
	KindTimeout      Kind = "timeout"
	KindInternal     Kind = "internal"
)

// Error is a classified domain error. Hint is safe to show to operators.
type Error struct {
	Kind Kind
	Msg  string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
	}
	return false
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrGateway      = &Error{Kind: KindGateway}
	ErrPersistence  = &Error{Kind: KindPersistence}
	ErrConfig       = &Error{Kind: KindConfig}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized() error {
	return &Error{Kind: KindUnauthorized, Msg: "Unauthorized"}
}

func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a datastore failure. The underlying error is logged, not exposed.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Msg: op, Hint: "datastore error", Err: err}
}

// GatewayError is an upstream payment network failure.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: %d - %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("gateway %s: %s", e.Op, e.Body)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return KindGateway
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Hint returns the operator-facing hint attached to err, if any.
func Hint(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Hint
	}
	var ge *GatewayError
	if errors.As(err, &ge) && ge.StatusCode != 0 {
		return fmt.Sprintf("upstream status %d", ge.StatusCode)
	}
	return ""
}

// Public returns the message safe to render at the boundary.
// Persistence and internal errors are reduced to their operation name.
func Public(err error) string {
	switch KindOf(err) {
	case KindPersistence:
		var ae *Error
		errors.As(err, &ae)
		return ae.Msg
	case KindInternal:
		return "internal error"
	}
	return err.Error()
}

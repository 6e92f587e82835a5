// Package bbserr defines the server-wide error taxonomy. Every fault that
// crosses a component boundary is a *Error so handlers at the HTTP edge can
// map it to a status code without inspecting error strings.
package bbserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract fault kinds in spec §7.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindSandbox        Kind = "sandbox"
	KindQuota          Kind = "quota"
	KindStoreFault     Kind = "store_fault"
	KindRemoteFetch    Kind = "remote_fetch"
	KindInternal       Kind = "internal"
)

// Error is the concrete type every component-boundary fault takes.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches a structured detail field and returns the receiver,
// mirroring the teacher's errors.ServiceError.WithDetails chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Validation(message string) *Error              { return newErr(KindValidation, message, nil) }
func Auth(message string) *Error                    { return newErr(KindAuth, message, nil) }
func NotFound(message string) *Error                { return newErr(KindNotFound, message, nil) }
func Conflict(message string) *Error                { return newErr(KindConflict, message, nil) }
func Sandbox(message string) *Error                  { return newErr(KindSandbox, message, nil) }
func Quota(message string) *Error                    { return newErr(KindQuota, message, nil) }
func StoreFault(message string, cause error) *Error  { return newErr(KindStoreFault, message, cause) }
func RemoteFetch(message string, cause error) *Error { return newErr(KindRemoteFetch, message, cause) }
func Internal(message string, cause error) *Error    { return newErr(KindInternal, message, cause) }

// As extracts a *Error from any error, the way the teacher's
// errors.GetServiceError does.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatus maps an error's Kind to the status code §7 assigns it. A plain
// (non-*Error) error maps to 500, matching "internal invariants ... are
// logged and reported as StoreFault-equivalent 500s."
func HTTPStatus(err error) int {
	e := As(err)
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindConflict, KindSandbox, KindQuota:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindStoreFault, KindInternal:
		return http.StatusInternalServerError
	case KindRemoteFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

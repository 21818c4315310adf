// internal/errs/errs.go
// Package errs defines the distinct error kinds shared across the router,
// registries, transport and cluster coordinator. Centralising them here lets
// the HTTP proxy and the handshake path each apply their own propagation
// policy (close code vs. JSON body vs. gRPC status) from a single source of
// truth.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error variants a routed call or connection can fail
// with. Each is a stable, comparable identity independent of the
// human-readable message.
type Kind string

const (
	InvalidToken       Kind = "InvalidToken"
	ExpiredToken       Kind = "ExpiredToken"
	InsufficientScope  Kind = "InsufficientScope"
	WorkspaceRequired  Kind = "WorkspaceRequired"
	WorkspaceForbidden Kind = "WorkspaceForbidden"
	ClientIDInUse      Kind = "ClientIdInUse"
	ServiceIDInUse     Kind = "ServiceIdInUse"
	ServiceNotFound    Kind = "ServiceNotFound"
	FunctionNotFound   Kind = "FunctionNotFound"
	RecipientUnknown   Kind = "RecipientUnknown"
	TransportClosed    Kind = "TransportClosed"
	RequestTimeout     Kind = "RequestTimeout"
	BackpressureDrop   Kind = "BackpressureDrop"
	StoreUnavailable   Kind = "StoreUnavailable"
	MalformedFrame     Kind = "MalformedFrame"
	ServiceError       Kind = "ServiceError"
)

// Error is a typed, wrappable error carrying one of the Kind values above.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns "" and false.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

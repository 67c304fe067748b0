/*
Package apperr defines the failure taxonomy returned by the repository layer.

Every error that leaves the repository is a [*Failure] carrying exactly one
[Kind]. Adapters never import this package's callers; instead their error
types implement [Kinded] so [Classify] can map them without a dependency
cycle.
*/
package apperr

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Kind is the category of a Failure
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindServer
	KindAuth
	KindNotFound
	KindValidation
	KindCache
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkFailure"
	case KindServer:
		return "ServerFailure"
	case KindAuth:
		return "AuthFailure"
	case KindNotFound:
		return "NotFoundFailure"
	case KindValidation:
		return "ValidationFailure"
	case KindCache:
		return "CacheFailure"
	default:
		return "UnknownFailure"
	}
}

// Failure is the canonical error type at the repository boundary.
//
// Message is safe to show to the user. Cause is kept for logging and for
// errors.Is / errors.As traversal.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Message == "" && f.Cause != nil {
		return f.Cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Cause }

// Kinded is implemented by adapter errors that know their failure kind
type Kinded interface {
	FailureKind() Kind
}

// # Constructors

// Network creates a NetworkFailure (no connectivity, transport error).
func Network(msg string, cause error) *Failure {
	return &Failure{Kind: KindNetwork, Message: msg, Cause: cause}
}

// Server creates a ServerFailure (remote returned an application error).
func Server(msg string, cause error) *Failure {
	return &Failure{Kind: KindServer, Message: msg, Cause: cause}
}

// Auth creates an AuthFailure (401 / session invalid).
func Auth(msg string, cause error) *Failure {
	return &Failure{Kind: KindAuth, Message: msg, Cause: cause}
}

// NotFound creates a NotFoundFailure for a named resource.
//
// Example:
//
//	apperr.NotFound("Shelf", nil) // "Shelf not found"
func NotFound(resource string, cause error) *Failure {
	return &Failure{Kind: KindNotFound, Message: resource + " not found", Cause: cause}
}

// Validation creates a ValidationFailure for caller input.
func Validation(msg string) *Failure {
	return &Failure{Kind: KindValidation, Message: msg}
}

// Cache creates a CacheFailure (local persistence read/write error).
func Cache(msg string, cause error) *Failure {
	return &Failure{Kind: KindCache, Message: msg, Cause: cause}
}

// Unknown wraps an unclassified error with its string representation.
func Unknown(cause error) *Failure {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Failure{Kind: KindUnknown, Message: msg, Cause: cause}
}

// # Sentinels

type sentinel struct {
	kind Kind
	msg  string
}

func (s *sentinel) Error() string     { return s.msg }
func (s *sentinel) FailureKind() Kind { return s.kind }

// Sentinel returns a comparable error value that classifies as kind.
// Adapters use it for their package-level error variables.
func Sentinel(kind Kind, msg string) error {
	return &sentinel{kind: kind, msg: msg}
}

// # Helpers

// As extracts the *Failure from err's chain. It returns nil if not found.
func As(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return nil
}

// KindOf returns the kind err classifies as
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return Classify(err).Kind
}

// IsKind reports whether err classifies as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify converts any error into exactly one Failure.
// A nil error yields nil.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	if f := As(err); f != nil {
		return f
	}

	var kinded Kinded
	if errors.As(err, &kinded) {
		return &Failure{Kind: kinded.FailureKind(), Message: err.Error(), Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Network("request timed out or was cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network("network unavailable", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Network("network unavailable", err)
	}

	return Unknown(err)
}

package openlibrary

import (
	"fmt"
	"net/http"

	"reader/internal/apperr"
)

var (
	// ErrUnauthorized is returned when the session cookie is missing or rejected
	ErrUnauthorized = apperr.Sentinel(apperr.KindAuth, "openlibrary: session is not authorized")

	// ErrNotFound is returned when the requested resource does not exist
	ErrNotFound = apperr.Sentinel(apperr.KindNotFound, "openlibrary: resource not found")

	// ErrForeignURL is returned for absolute URLs outside the Open Library host
	ErrForeignURL = apperr.Sentinel(apperr.KindValidation, "openlibrary: URL is not on the Open Library host")
)

// StatusError is a non-2xx response from Open Library
type StatusError struct {
	Code   int
	Method string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openlibrary: %s %s returned status %d", e.Method, e.URL, e.Code)
}

// Unwrap exposes ErrUnauthorized and ErrNotFound for errors.Is
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func (e *StatusError) FailureKind() apperr.Kind {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindAuth
	case http.StatusNotFound:
		return apperr.KindNotFound
	default:
		return apperr.KindServer
	}
}

// MalformedResponseError reports a payload that is not valid JSON or lacks a
// required field. Optional fields never produce it.
type MalformedResponseError struct {
	Endpoint string
	Field    string
	Reason   string
}

func (e *MalformedResponseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("openlibrary: malformed %s response: %s: %s", e.Endpoint, e.Field, e.Reason)
	}
	return fmt.Sprintf("openlibrary: malformed %s response: %s", e.Endpoint, e.Reason)
}

func (e *MalformedResponseError) FailureKind() apperr.Kind { return apperr.KindServer }

func malformed(endpoint, field, reason string) *MalformedResponseError {
	return &MalformedResponseError{Endpoint: endpoint, Field: field, Reason: reason}
}

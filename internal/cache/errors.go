package cache

import (
	"reader/internal/apperr"
)

// ErrCacheMiss is returned when nothing is persisted for the requested key
var ErrCacheMiss = apperr.Sentinel(apperr.KindCache, "cache miss")

// Error is a local persistence failure: the store could be reached but the
// document could not be read, decoded or written.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "cache " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// FailureKind classifies every cache error as a CacheFailure
func (e *Error) FailureKind() apperr.Kind { return apperr.KindCache }

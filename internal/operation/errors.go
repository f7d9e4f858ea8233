package operation

import (
	"context"
	"errors"
)

// ErrorKind is the shared failure taxonomy. Every backend-specific error
// is mapped onto one of these before a Result crosses the router
// boundary.
type ErrorKind string

const (
	// KindUnknownOperation: the operation identifier is not in the catalog.
	KindUnknownOperation ErrorKind = "UnknownOperation"

	// KindPermissionDenied: the permission gate refused the request.
	KindPermissionDenied ErrorKind = "PermissionDenied"

	// KindNoBackendAvailable: no probed-available backend declares the capability.
	KindNoBackendAvailable ErrorKind = "NoBackendAvailable"

	// KindInvalidParameters: a required parameter is missing or malformed.
	KindInvalidParameters ErrorKind = "InvalidParameters"

	// KindCollectionNotLoaded: a semantic query targeted an unloaded collection.
	KindCollectionNotLoaded ErrorKind = "CollectionNotLoaded"

	// KindProviderUnavailable: the specialized provider's dependency is absent.
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"

	// KindParseError: the symbolic provider could not parse a source file.
	KindParseError ErrorKind = "ParseError"

	// KindBackendTransient: an infrastructure failure; the router retries
	// exactly once against the next-priority backend.
	KindBackendTransient ErrorKind = "BackendTransientFailure"

	// KindBackendSemantic: a semantic failure (file not found, bad input);
	// never retried on another backend.
	KindBackendSemantic ErrorKind = "BackendSemanticFailure"

	// KindCancelled: the caller abandoned the request mid-dispatch.
	KindCancelled ErrorKind = "Cancelled"
)

// Sentinel errors shared across packages.
var (
	// ErrUnknownOperation is returned for identifiers outside the catalog.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrNoBackend is returned when no available backend declares a capability.
	ErrNoBackend = errors.New("no backend available")

	// ErrMissingParameter is returned when a required parameter is absent.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrCollectionNotLoaded is returned for queries against an unloaded root.
	ErrCollectionNotLoaded = errors.New("collection not loaded")

	// ErrProviderUnavailable is returned when a provider dependency is absent.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrParse is returned when a source file cannot be parsed.
	ErrParse = errors.New("parse error")
)

// TransientError marks an infrastructure failure that a different
// backend might service successfully (connection reset, dead session).
// Backends wrap such failures with Transient; everything else is treated
// as semantic.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying failure.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a transient backend failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// KindOf maps an error onto the shared taxonomy. Context cancellation
// wins over everything else so callers see Cancelled rather than the
// backend's wrapping of it.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrUnknownOperation):
		return KindUnknownOperation
	case errors.Is(err, ErrNoBackend):
		return KindNoBackendAvailable
	case errors.Is(err, ErrMissingParameter):
		return KindInvalidParameters
	case errors.Is(err, ErrCollectionNotLoaded):
		return KindCollectionNotLoaded
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrParse):
		return KindParseError
	case IsTransient(err):
		return KindBackendTransient
	default:
		return KindBackendSemantic
	}
}

// Package errkind gives every error the pipeline produces a typed kind, so
// callers can decide whether to fall back, abort, or surface a message
// without string-matching.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Internal marks a programmer error: nil dereference guards,
	// unreachable branches, invariant violations.
	Internal Kind = iota
	// InvalidInput marks a caller-supplied value that fails validation:
	// a bad date format, an unknown category code, an empty required field.
	InvalidInput
	// UpstreamUnavailable marks a network error or non-success response
	// from the DART service.
	UpstreamUnavailable
	// UpstreamEmpty marks a successful call that returned zero rows. This
	// is not treated as a failure by callers; it exists so call sites can
	// distinguish "nothing found" from "couldn't ask".
	UpstreamEmpty
	// LLMUnavailable marks a missing client or a network error reaching
	// the completion endpoint.
	LLMUnavailable
	// LLMMalformed marks a response that could not be parsed into the
	// shape the caller expected.
	LLMMalformed
	// Cancelled marks a context cancellation or deadline.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	case UpstreamEmpty:
		return "upstream_empty"
	case LLMUnavailable:
		return "llm_unavailable"
	case LLMMalformed:
		return "llm_malformed"
	case Cancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind and the operation that
// produced it. It caches its formatted message the way pkg/safe.PanicError
// does, since Error() may be called repeatedly while logging.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	cached string
}

func (e *Error) Error() string {
	if e.cached == "" {
		if e.Err != nil {
			e.cached = fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		} else {
			e.cached = fmt.Sprintf("%s: %s", e.Op, e.Kind)
		}
	}
	return e.cached
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a kinded error for op, wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return Internal
	}
	return Internal
}

// Package discoveryerr defines the typed error taxonomy shared by every
// source adapter and by the discovery manager that drives them. Callers
// should classify failures into one of these kinds rather than returning
// bare errors, so the manager and scheduler can decide what to retry, what
// to surface as a PARTIAL outcome, and what to give up on.
package discoveryerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the recognized error categories.
type Kind string

const (
	KindConfig          Kind = "CONFIG"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindTransientRemote Kind = "TRANSIENT_REMOTE"
	KindPermanentRemote Kind = "PERMANENT_REMOTE"
	KindParse           Kind = "PARSE"
	KindCancelled       Kind = "CANCELLED"
	KindPoolExhausted   Kind = "POOL_EXHAUSTED"
)

// Error wraps an underlying error with a Kind and the endpoint or component
// it originated from, so callers can branch on classification without
// string-matching error messages.
type Error struct {
	Kind      Kind
	Source    string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, discoveryerr.ConfigError) style matching by
// comparing Kind when the target is itself an *Error with no wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

// sentinel builds a bare *Error usable as an errors.Is target, e.g.
// errors.Is(err, discoveryerr.ConfigError).
func sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinels for errors.Is comparisons against a Kind, independent of the
// wrapped cause or source.
var (
	ConfigError          = sentinel(KindConfig)
	RateLimitedError     = sentinel(KindRateLimited)
	TransientRemoteError = sentinel(KindTransientRemote)
	PermanentRemoteError = sentinel(KindPermanentRemote)
	ParseError           = sentinel(KindParse)
	CancelledError       = sentinel(KindCancelled)
	PoolExhaustedError   = sentinel(KindPoolExhausted)
)

// New constructs an *Error of the given kind wrapping cause, attributed to
// source (typically an adapter or component name).
func New(kind Kind, source string, cause error) *Error {
	return &Error{Kind: kind, Source: source, Err: cause, Retryable: kind.defaultRetryable()}
}

// defaultRetryable gives each Kind's default retry disposition. Individual
// adapters may construct an *Error directly and override Retryable when a
// specific response (e.g. HTTP 400 vs 503) disagrees with the default.
func (k Kind) defaultRetryable() bool {
	switch k {
	case KindRateLimited, KindTransientRemote, KindPoolExhausted:
		return true
	case KindConfig, KindPermanentRemote, KindParse, KindCancelled:
		return false
	default:
		return false
	}
}

// IsRetryable reports whether err (or any *Error in its chain) is marked
// retryable. A plain, unclassified error is treated as not retryable.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err does not wrap a
// discoveryerr.Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

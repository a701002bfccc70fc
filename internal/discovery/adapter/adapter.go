// Package adapter defines the common interface every source adapter
// (ArXiv, PubMed, CrossRef, OpenAlex, Semantic Scholar, Browser) implements,
// plus the shared retry policy they all apply to transient failures.
package adapter

import (
	"context"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

// Query is the normalized request every adapter's Discover accepts. Not
// every field is meaningful to every adapter kind; Validate reports which
// fields a given adapter requires.
type Query struct {
	Categories       []string
	Keywords         []string
	DateFrom         *time.Time
	DateTo           *time.Time
	MinCitationCount *int
	// Parameters carries adapter-kind-specific values, notably the keyword
	// values the Browser adapter injects into parameterized TYPE steps.
	Parameters map[string]any
}

// Result is one item of an adapter's discovery stream. Exactly one of
// Paper or Err is set. A stream with Err set for an item continues; the
// item is skipped (the "permanent, skip the offending item" policy). The
// channel is closed once the sequence is exhausted or a non-recoverable
// error ends it early, in which case the final Result carries that error.
type Result struct {
	Paper *paper.Paper
	Err   error
}

// Adapter is the contract every source adapter implements.
type Adapter interface {
	// Validate reports whether query is usable by this adapter without
	// making any network call.
	Validate(query Query) error

	// Discover returns a channel streaming normalized papers for query,
	// closed when the sequence ends (normal exhaustion, cancellation, or a
	// terminal error on the final Result). The channel is not restartable
	// per call; a new call begins a fresh sequence. maxResults bounds the
	// number of Papers the caller wants (>= 1).
	Discover(ctx context.Context, query Query, maxResults int) (<-chan Result, error)

	// RateLimitID identifies the token bucket this adapter draws from.
	RateLimitID() ratelimiter.EndpointID
}

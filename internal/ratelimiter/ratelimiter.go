// Package ratelimiter provides per-endpoint token bucket rate limiting for
// outbound calls to upstream discovery providers. Each endpoint (one per
// adapter kind) gets its own independent bucket so a slow or throttled
// provider never starves the others.
package ratelimiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// EndpointID names one of the rate-limited upstream endpoints. Adapters
// identify themselves by their EndpointID when acquiring a token.
type EndpointID string

const (
	EndpointArXiv           EndpointID = "arxiv"
	EndpointPubMed          EndpointID = "pubmed"
	EndpointCrossRef        EndpointID = "crossref"
	EndpointOpenAlex        EndpointID = "openalex"
	EndpointSemanticScholar EndpointID = "semantic_scholar"
	EndpointBrowser         EndpointID = "browser"
)

// Rate describes a token bucket's steady-state rate and burst size.
type Rate struct {
	PerSecond float64
	Burst     int
}

// defaultRates holds the per-endpoint defaults from the system specification.
// Callers may override any of these via Configure before first use.
var defaultRates = map[EndpointID]Rate{
	EndpointArXiv:           {PerSecond: 1.0 / 3.0, Burst: 1},
	EndpointPubMed:          {PerSecond: 3, Burst: 10},
	EndpointCrossRef:        {PerSecond: 50, Burst: 100},
	EndpointOpenAlex:        {PerSecond: 10, Burst: 50},
	EndpointSemanticScholar: {PerSecond: 100, Burst: 100},
	EndpointBrowser:         {PerSecond: 1, Burst: 5},
}

// Limiter manages one token bucket per endpoint. The zero value is not
// usable; construct with New.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[EndpointID]*rate.Limiter
}

// New builds a Limiter pre-populated with the system's default per-endpoint
// rates. Use Configure to override any of them before adapters start
// acquiring tokens.
func New() *Limiter {
	l := &Limiter{buckets: make(map[EndpointID]*rate.Limiter, len(defaultRates))}
	for id, r := range defaultRates {
		l.buckets[id] = rate.NewLimiter(rate.Limit(r.PerSecond), r.Burst)
	}
	return l
}

// Configure replaces the bucket for endpoint with one built from r. It is
// safe to call concurrently with Acquire, and is how a per-source
// rate_limit_override from the source configuration takes effect.
func (l *Limiter) Configure(endpoint EndpointID, r Rate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[endpoint] = rate.NewLimiter(rate.Limit(r.PerSecond), r.Burst)
}

// Acquire blocks until a token for endpoint is available or ctx is
// cancelled. Waiters are served in FIFO order by the underlying
// golang.org/x/time/rate implementation. Acquiring for an endpoint that was
// never configured and has no default returns an error immediately.
func (l *Limiter) Acquire(ctx context.Context, endpoint EndpointID) error {
	b, err := l.bucketFor(endpoint)
	if err != nil {
		return err
	}
	if err := b.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimiter: acquire %s: %w", endpoint, err)
	}
	return nil
}

// Allow reports whether a token for endpoint is immediately available,
// consuming it if so, without blocking. Used by callers that want to fail
// fast rather than queue.
func (l *Limiter) Allow(endpoint EndpointID) (bool, error) {
	b, err := l.bucketFor(endpoint)
	if err != nil {
		return false, err
	}
	return b.Allow(), nil
}

func (l *Limiter) bucketFor(endpoint EndpointID) (*rate.Limiter, error) {
	l.mu.RLock()
	b, ok := l.buckets[endpoint]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ratelimiter: no bucket configured for endpoint %q", endpoint)
	}
	return b, nil
}

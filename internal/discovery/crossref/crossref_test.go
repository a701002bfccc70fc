package crossref_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/crossref"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
	"github.com/stretchr/testify/require"
)

const samplePage1 = `{
  "message": {
    "items": [{
      "DOI": "10.1000/ABC123",
      "title": ["Deep Learning for Genomics"],
      "container-title": ["Nature Methods"],
      "author": [{"given": "Jane", "family": "Doe"}],
      "published": {"date-parts": [[2022]]},
      "is-referenced-by-count": 42
    }],
    "next-cursor": ""
  }
}`

func newAdapter(t *testing.T) *crossref.Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage1))
	}))
	t.Cleanup(server.Close)

	limiter := ratelimiter.New()
	limiter.Configure(ratelimiter.EndpointCrossRef, ratelimiter.Rate{PerSecond: 1000, Burst: 1000})

	a := crossref.New(server.Client(), limiter, logger.NewNoOpLogger(), "research@example.com")
	crossref.SetURLForTest(a, server.URL)
	return a
}

func TestAdapter_Validate_RequiresKeyword(t *testing.T) {
	t.Parallel()
	a := crossref.New(nil, ratelimiter.New(), logger.NewNoOpLogger(), "")
	require.Error(t, a.Validate(adapter.Query{}))
	require.NoError(t, a.Validate(adapter.Query{Keywords: []string{"genomics"}}))
}

func TestAdapter_Discover_NormalizesDOIAndFields(t *testing.T) {
	t.Parallel()

	a := newAdapter(t)
	results, err := a.Discover(t.Context(), adapter.Query{Keywords: []string{"genomics"}}, 5)
	require.NoError(t, err)

	var got []adapter.Result
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	require.Equal(t, "10.1000/abc123", got[0].Paper.Identifiers.DOI)
	require.Equal(t, "Deep Learning for Genomics", got[0].Paper.Title)
	require.Equal(t, "Nature Methods", got[0].Paper.Venue)
	require.Equal(t, 2022, got[0].Paper.PublicationYear)
	require.NotNil(t, got[0].Paper.CitationCount)
	require.Equal(t, 42, *got[0].Paper.CitationCount)
}

func TestAdapter_Discover_StopsWhenNextCursorEmpty(t *testing.T) {
	t.Parallel()

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage1))
	}))
	t.Cleanup(server.Close)

	limiter := ratelimiter.New()
	limiter.Configure(ratelimiter.EndpointCrossRef, ratelimiter.Rate{PerSecond: 1000, Burst: 1000})
	a := crossref.New(server.Client(), limiter, logger.NewNoOpLogger(), "")
	crossref.SetURLForTest(a, server.URL)

	results, err := a.Discover(t.Context(), adapter.Query{Keywords: []string{"genomics"}}, 100)
	require.NoError(t, err)
	for range results {
	}
	require.Equal(t, 1, calls)
}

func TestAdapter_RateLimitID(t *testing.T) {
	t.Parallel()
	a := crossref.New(nil, ratelimiter.New(), logger.NewNoOpLogger(), "")
	require.Equal(t, ratelimiter.EndpointCrossRef, a.RateLimitID())
}

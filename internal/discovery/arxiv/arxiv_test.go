package arxiv_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/arxiv"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2301.00001v1</id>
    <title>  Attention   Is All
You Need </title>
    <summary>A summary of the transformer architecture.</summary>
    <published>2017-06-12T00:00:00Z</published>
    <author><name>Ashish Vaswani</name></author>
    <category term="cs.LG"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.00001v1"/>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func newAdapter(t *testing.T, handler http.HandlerFunc) *arxiv.Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	limiter := ratelimiter.New()
	limiter.Configure(ratelimiter.EndpointArXiv, ratelimiter.Rate{PerSecond: 1000, Burst: 1000})

	a := arxiv.New(server.Client(), limiter, logger.NewNoOpLogger())
	arxiv.SetBaseURLForTest(a, server.URL)
	return a
}

func TestAdapter_Validate_RequiresCategoryOrKeyword(t *testing.T) {
	t.Parallel()
	a := arxiv.New(nil, ratelimiter.New(), logger.NewNoOpLogger())
	require.Error(t, a.Validate(adapter.Query{}))
	require.NoError(t, a.Validate(adapter.Query{Categories: []string{"cs.LG"}}))
}

func TestAdapter_Discover_YieldsNormalizedPaper(t *testing.T) {
	t.Parallel()

	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := a.Discover(ctx, adapter.Query{Categories: []string{"cs.LG"}}, 1)
	require.NoError(t, err)

	var got []adapter.Result
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	require.NoError(t, got[0].Err)
	require.Equal(t, "Attention Is All You Need", got[0].Paper.Title)
	require.Equal(t, "2301.00001v1", got[0].Paper.Identifiers.ArXivID)
	require.Equal(t, 2017, got[0].Paper.PublicationYear)
	require.Equal(t, "Ashish Vaswani", got[0].Paper.FirstAuthor())
}

func TestAdapter_Discover_StopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	calls := 0
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(emptyFeed))
	})

	results, err := a.Discover(context.Background(), adapter.Query{Keywords: []string{"transformer"}}, 50)
	require.NoError(t, err)

	var got []adapter.Result
	for r := range results {
		got = append(got, r)
	}
	require.Empty(t, got)
	require.Equal(t, 1, calls)
}

func TestAdapter_Discover_RejectsZeroMaxResults(t *testing.T) {
	t.Parallel()
	a := arxiv.New(nil, ratelimiter.New(), logger.NewNoOpLogger())
	_, err := a.Discover(context.Background(), adapter.Query{Categories: []string{"cs.LG"}}, 0)
	require.Error(t, err)
}

func TestAdapter_RateLimitID(t *testing.T) {
	t.Parallel()
	a := arxiv.New(nil, ratelimiter.New(), logger.NewNoOpLogger())
	require.Equal(t, ratelimiter.EndpointArXiv, a.RateLimitID())
}

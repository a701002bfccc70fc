package manager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

// fakeAdapter yields a fixed set of results and records the query it saw.
type fakeAdapter struct {
	results []adapter.Result
	rateID  ratelimiter.EndpointID
}

func (f *fakeAdapter) Validate(adapter.Query) error { return nil }

func (f *fakeAdapter) Discover(_ context.Context, _ adapter.Query, _ int) (<-chan adapter.Result, error) {
	out := make(chan adapter.Result, len(f.results))
	for _, r := range f.results {
		out <- r
	}
	close(out)
	return out, nil
}

func (f *fakeAdapter) RateLimitID() ratelimiter.EndpointID { return f.rateID }

func emptyCorpus() *contextanalyzer.CorpusContext {
	return contextanalyzer.AnalyzeCorpus(func() (*paper.Paper, bool) { return nil, false })
}

func TestRun_SuccessEmitsAcceptedPapers(t *testing.T) {
	t.Parallel()

	adp := &fakeAdapter{results: []adapter.Result{
		{Paper: &paper.Paper{Title: "Paper One", Identifiers: paper.Identifiers{DOI: "10.1/a"}, SourceProvenance: paper.ProvenanceArXiv}},
		{Paper: &paper.Paper{Title: "Paper Two", Identifiers: paper.Identifiers{DOI: "10.1/b"}, SourceProvenance: paper.ProvenanceArXiv}},
	}}
	registry := manager.Registry{sourceconfig.KindArXiv: adp}

	output := make(chan *paper.Paper, 10)
	m := manager.New(registry, nil, output, logger.NewNoOpLogger())

	cfg := sourceconfig.SourceConfig{
		Name: "arxiv_ml", Kind: sourceconfig.KindArXiv,
		MaxPapersPerRun: 10,
		Filters:         sourceconfig.Filters{RelevanceThreshold: 0},
	}

	result, err := m.Run(context.Background(), cfg, emptyCorpus())
	require.NoError(t, err)
	require.Equal(t, sourceconfig.OutcomeSuccess, result.Outcome)
	require.Equal(t, 2, result.CandidatesFetched)
	require.Equal(t, 2, result.CandidatesAfterDedup)
	require.Equal(t, 2, result.CandidatesAfterFilter)
	require.Equal(t, 2, result.PapersEmitted)
	close(output)

	var titles []string
	for p := range output {
		titles = append(titles, p.Title)
	}
	require.ElementsMatch(t, []string{"Paper One", "Paper Two"}, titles)
}

func TestRun_NoAdapterRegisteredFails(t *testing.T) {
	t.Parallel()

	output := make(chan *paper.Paper, 1)
	m := manager.New(manager.Registry{}, nil, output, logger.NewNoOpLogger())

	cfg := sourceconfig.SourceConfig{Name: "missing", Kind: sourceconfig.KindArXiv, MaxPapersPerRun: 10}

	result, err := m.Run(context.Background(), cfg, emptyCorpus())
	require.NoError(t, err)
	require.Equal(t, sourceconfig.OutcomeFailed, result.Outcome)
	require.Equal(t, 0, result.PapersEmitted)
	require.Len(t, result.Errors, 1)
}

func TestRun_PartialOutcomeWhenSomePapersEmittedDespiteError(t *testing.T) {
	t.Parallel()

	adp := &fakeAdapter{results: []adapter.Result{
		{Paper: &paper.Paper{Title: "Survivor", Identifiers: paper.Identifiers{DOI: "10.1/c"}, SourceProvenance: paper.ProvenanceArXiv}},
		{Err: discoveryerr.New(discoveryerr.KindPermanentRemote, "arxiv", errors.New("bad request"))},
	}}
	registry := manager.Registry{sourceconfig.KindArXiv: adp}

	output := make(chan *paper.Paper, 10)
	m := manager.New(registry, nil, output, logger.NewNoOpLogger())

	cfg := sourceconfig.SourceConfig{Name: "arxiv_ml", Kind: sourceconfig.KindArXiv, MaxPapersPerRun: 10}

	result, err := m.Run(context.Background(), cfg, emptyCorpus())
	require.NoError(t, err)
	require.Equal(t, sourceconfig.OutcomePartial, result.Outcome)
	require.Equal(t, 1, result.PapersEmitted)
}

func TestRun_FanOutQueriesAllAPIKinds(t *testing.T) {
	t.Parallel()

	arxivAdapter := &fakeAdapter{results: []adapter.Result{
		{Paper: &paper.Paper{Title: "From ArXiv", Identifiers: paper.Identifiers{DOI: "10.1/x"}, SourceProvenance: paper.ProvenanceArXiv}},
	}}
	crossrefAdapter := &fakeAdapter{results: []adapter.Result{
		{Paper: &paper.Paper{Title: "From CrossRef", Identifiers: paper.Identifiers{DOI: "10.1/y"}, SourceProvenance: paper.ProvenanceCrossRef}},
	}}
	empty := &fakeAdapter{}
	registry := manager.Registry{
		sourceconfig.KindArXiv:           arxivAdapter,
		sourceconfig.KindCrossRef:        crossrefAdapter,
		sourceconfig.KindOpenAlex:        empty,
		sourceconfig.KindPubMed:          empty,
		sourceconfig.KindSemanticScholar: empty,
	}

	output := make(chan *paper.Paper, 10)
	m := manager.New(registry, nil, output, logger.NewNoOpLogger())

	cfg := sourceconfig.SourceConfig{Name: "fanout", FanOut: true, MaxPapersPerRun: 10}

	result, err := m.Run(context.Background(), cfg, emptyCorpus())
	require.NoError(t, err)
	require.Equal(t, sourceconfig.OutcomeSuccess, result.Outcome)
	require.Equal(t, 2, result.PapersEmitted)
}

package relevance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/relevance"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

func emptyContext() *contextanalyzer.CorpusContext {
	return contextanalyzer.AnalyzeCorpus(func() (*paper.Paper, bool) { return nil, false })
}

func TestApply_BelowThreshold(t *testing.T) {
	t.Parallel()

	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{RelevanceThreshold: 0.5}}
	p := &paper.Paper{Title: "Unrelated Paper"}

	accepted, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Empty(t, accepted)
	require.Len(t, rejected, 1)
	require.Equal(t, relevance.ReasonBelowThreshold, rejected[0].Reason)
}

func TestApply_DateOutOfRange(t *testing.T) {
	t.Parallel()

	from := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{DateFrom: &from}}
	p := &paper.Paper{Title: "Old Paper", PublicationYear: 2018}

	accepted, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Empty(t, accepted)
	require.Len(t, rejected, 1)
	require.Equal(t, relevance.ReasonDateOutOfRange, rejected[0].Reason)
}

func TestApply_MissingRequiredKeyword(t *testing.T) {
	t.Parallel()

	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{Keywords: []string{"genomics"}}}
	p := &paper.Paper{Title: "Graph Neural Networks", Abstract: "A survey of message passing."}

	accepted, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Empty(t, accepted)
	require.Len(t, rejected, 1)
	require.Equal(t, relevance.ReasonMissingRequiredKeyword, rejected[0].Reason)
}

func TestApply_BelowMinCitations(t *testing.T) {
	t.Parallel()

	min := 50
	citations := 10
	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{MinCitationCount: &min}}
	p := &paper.Paper{Title: "Sparse Paper", CitationCount: &citations}

	accepted, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Empty(t, accepted)
	require.Len(t, rejected, 1)
	require.Equal(t, relevance.ReasonBelowMinCitations, rejected[0].Reason)
}

func TestApply_AcceptsWhenAllFiltersPass(t *testing.T) {
	t.Parallel()

	min := 5
	citations := 10
	cfg := sourceconfig.SourceConfig{
		Filters: sourceconfig.Filters{
			Keywords:           []string{"genomics"},
			MinCitationCount:   &min,
			RelevanceThreshold: 0,
		},
	}
	p := &paper.Paper{
		Title:           "Deep Learning for Genomics",
		PublicationYear: 2023,
		CitationCount:   &citations,
	}

	accepted, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Len(t, accepted, 1)
	require.Empty(t, rejected)
}

func TestApply_MissingCitationCountFailsMinCitations(t *testing.T) {
	t.Parallel()

	min := 1
	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{MinCitationCount: &min}}
	p := &paper.Paper{Title: "No Citation Data"}

	_, rejected := relevance.Apply([]*paper.Paper{p}, cfg, emptyContext())

	require.Len(t, rejected, 1)
	require.Equal(t, relevance.ReasonBelowMinCitations, rejected[0].Reason)
}

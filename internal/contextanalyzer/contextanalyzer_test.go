package contextanalyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

func corpus(papers []*paper.Paper) func() (*paper.Paper, bool) {
	i := 0
	return func() (*paper.Paper, bool) {
		if i >= len(papers) {
			return nil, false
		}
		p := papers[i]
		i++
		return p, true
	}
}

func samplePapers() []*paper.Paper {
	return []*paper.Paper{
		{
			Title:           "Graph Neural Networks",
			Authors:         []paper.Author{{FullName: "Ada Lovelace"}},
			Concepts:        paper.ConceptSet("machine learning", "graphs"),
			References:      []string{"10.1/ref1"},
			PublicationYear: 2019,
		},
		{
			Title:           "Transformers for Vision",
			Authors:         []paper.Author{{FullName: "Ada Lovelace"}, {FullName: "Grace Hopper"}},
			Concepts:        paper.ConceptSet("machine learning", "vision"),
			References:      []string{"10.1/ref2"},
			PublicationYear: 2022,
		},
	}
}

func TestAnalyzeCorpus_BuildsTopicsAuthorsAndRecency(t *testing.T) {
	t.Parallel()

	ctx := contextanalyzer.AnalyzeCorpus(corpus(samplePapers()))

	require.Equal(t, 2, ctx.Topics["machine learning"].Count)
	require.Equal(t, 1, ctx.Topics["graphs"].Count)
	require.Equal(t, 2, ctx.KnownAuthors["ada lovelace"])
	require.Equal(t, 1, ctx.KnownAuthors["grace hopper"])
	require.Contains(t, ctx.CitedIDs, "10.1/ref1")
	require.Equal(t, 2019, ctx.RecencyFrom)
	require.Equal(t, 2022, ctx.RecencyTo)
}

func TestBuildQuery_MergesTopicsAuthorsAndExplicitKeywords(t *testing.T) {
	t.Parallel()

	ctx := contextanalyzer.AnalyzeCorpus(corpus(samplePapers()))
	cfg := sourceconfig.SourceConfig{Filters: sourceconfig.Filters{Keywords: []string{"Machine Learning", "quantum"}}}

	query := contextanalyzer.BuildQuery(cfg, ctx)

	require.Contains(t, query, "machine learning")
	require.Contains(t, query, "quantum")
	count := 0
	for _, term := range query {
		if term == "machine learning" {
			count++
		}
	}
	require.Equal(t, 1, count, "case-insensitive dedup should collapse duplicate terms")
}

func TestScoreRelevance_WeightsTopicAuthorAndCitation(t *testing.T) {
	t.Parallel()

	ctx := contextanalyzer.AnalyzeCorpus(corpus(samplePapers()))

	matching := &paper.Paper{
		Authors:    []paper.Author{{FullName: "Ada Lovelace"}},
		Concepts:   paper.ConceptSet("machine learning"),
		References: []string{"10.1/ref1"},
	}
	score := contextanalyzer.ScoreRelevance(matching, ctx)
	require.InDelta(t, 1.0, score, 0.01)

	noMatch := &paper.Paper{
		Authors:    []paper.Author{{FullName: "Nobody Known"}},
		Concepts:   paper.ConceptSet("unrelated topic"),
		References: []string{"10.1/unrelated"},
	}
	require.InDelta(t, 0.0, contextanalyzer.ScoreRelevance(noMatch, ctx), 0.01)

	noRefs := &paper.Paper{
		Concepts: paper.ConceptSet("machine learning"),
	}
	require.InDelta(t, 0.7, contextanalyzer.ScoreRelevance(noRefs, ctx), 0.01)
}

// Package relevance applies a SourceConfig's filters and the context
// analyzer's relevance score to a batch of papers, per spec §4.6. Apply is
// pure: it produces a partition, no side effects.
package relevance

import (
	"strings"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

// Reason names why a paper was rejected.
type Reason string

const (
	ReasonBelowThreshold         Reason = "below_threshold"
	ReasonDateOutOfRange         Reason = "date_out_of_range"
	ReasonMissingRequiredKeyword Reason = "missing_required_keyword"
	ReasonBelowMinCitations      Reason = "below_min_citations"
)

// Rejected pairs a paper with the reason it failed the filter.
type Rejected struct {
	Paper  *paper.Paper
	Reason Reason
}

// Apply partitions papers into accepted and rejected-with-reason, checking
// filters in a fixed order so the first violated condition is reported.
func Apply(papers []*paper.Paper, cfg sourceconfig.SourceConfig, corpusCtx *contextanalyzer.CorpusContext) (accepted []*paper.Paper, rejected []Rejected) {
	for _, p := range papers {
		if reason, ok := reject(p, cfg, corpusCtx); ok {
			rejected = append(rejected, Rejected{Paper: p, Reason: reason})
			continue
		}
		accepted = append(accepted, p)
	}
	return accepted, rejected
}

func reject(p *paper.Paper, cfg sourceconfig.SourceConfig, corpusCtx *contextanalyzer.CorpusContext) (Reason, bool) {
	filters := cfg.Filters

	if !withinDateRange(p, filters) {
		return ReasonDateOutOfRange, true
	}

	if filters.MinCitationCount != nil {
		if p.CitationCount == nil || *p.CitationCount < *filters.MinCitationCount {
			return ReasonBelowMinCitations, true
		}
	}

	if len(filters.Keywords) > 0 && !matchesAnyKeyword(p, filters.Keywords) {
		return ReasonMissingRequiredKeyword, true
	}

	score := contextanalyzer.ScoreRelevance(p, corpusCtx)
	if score < filters.RelevanceThreshold {
		return ReasonBelowThreshold, true
	}

	return "", false
}

func withinDateRange(p *paper.Paper, filters sourceconfig.Filters) bool {
	if p.PublicationYear == 0 {
		return true
	}
	if filters.DateFrom != nil && p.PublicationYear < filters.DateFrom.Year() {
		return false
	}
	if filters.DateTo != nil && p.PublicationYear > filters.DateTo.Year() {
		return false
	}
	return true
}

func matchesAnyKeyword(p *paper.Paper, keywords []string) bool {
	haystack := strings.ToLower(p.Title + " " + p.Abstract)
	for concept := range p.Concepts {
		haystack += " " + strings.ToLower(concept)
	}
	for _, keyword := range keywords {
		if strings.Contains(haystack, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

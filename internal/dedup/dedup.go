// Package dedup merges candidate papers from multiple sources into one
// normalized list, per spec §4.5: group by identifier (DOI, then ArXiv ID,
// then fuzzy title+year), keep the highest-priority-provenance record per
// group, and backfill missing fields from the rest of the group.
package dedup

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jonesrussell/thoth-discovery/internal/paper"
)

const fuzzyThreshold = 0.85

var punctuation = regexp.MustCompile(`[^\w\s]`)
var whitespace = regexp.MustCompile(`\s+`)

// Candidate is one (source, paper) pair awaiting merge.
type Candidate struct {
	SourceKind string
	Paper      *paper.Paper
}

// Merge groups candidates by the first matching key — DOI, then ArXiv ID,
// then a fuzzy (normalized_title, publication_year) match — and returns one
// merged Paper per group. Candidates with no identifier and no year are
// emitted as-is, never merged with anything.
func Merge(batch []Candidate) []*paper.Paper {
	groups := groupByIdentifier(batch)
	groups = groupByFuzzyTitle(groups)

	merged := make([]*paper.Paper, 0, len(groups))
	for _, group := range groups {
		merged = append(merged, mergeGroup(group))
	}
	return merged
}

func groupByIdentifier(batch []Candidate) [][]Candidate {
	byDOI := make(map[string][]Candidate)
	byArXiv := make(map[string][]Candidate)
	var ungrouped []Candidate

	for _, c := range batch {
		doi := strings.ToLower(strings.TrimSpace(c.Paper.Identifiers.DOI))
		arxiv := normalizeArXivID(c.Paper.Identifiers.ArXivID)

		switch {
		case doi != "":
			byDOI[doi] = append(byDOI[doi], c)
		case arxiv != "":
			byArXiv[arxiv] = append(byArXiv[arxiv], c)
		default:
			ungrouped = append(ungrouped, c)
		}
	}

	var groups [][]Candidate
	for _, group := range byDOI {
		groups = append(groups, group)
	}
	for _, group := range byArXiv {
		groups = append(groups, group)
	}
	groups = append(groups, singletons(ungrouped)...)
	return groups
}

func singletons(candidates []Candidate) [][]Candidate {
	groups := make([][]Candidate, 0, len(candidates))
	for _, c := range candidates {
		groups = append(groups, []Candidate{c})
	}
	return groups
}

// groupByFuzzyTitle further merges single-candidate groups (whether or not
// their one candidate carries an identifier) that share a fuzzy-matching
// (normalized_title, publication_year).
// Groups with more than one member (already merged by identifier) and
// no-year/no-title candidates pass through unchanged.
func groupByFuzzyTitle(groups [][]Candidate) [][]Candidate {
	var fuzzyEligible [][]Candidate
	var rest [][]Candidate

	for _, g := range groups {
		if len(g) == 1 && g[0].Paper.PublicationYear > 0 && normalizeTitle(g[0].Paper.Title) != "" {
			fuzzyEligible = append(fuzzyEligible, g)
		} else {
			rest = append(rest, g)
		}
	}

	merged := make([]bool, len(fuzzyEligible))
	var result [][]Candidate

	for i := range fuzzyEligible {
		if merged[i] {
			continue
		}
		group := append([]Candidate{}, fuzzyEligible[i]...)
		merged[i] = true
		titleI := normalizeTitle(fuzzyEligible[i][0].Paper.Title)
		yearI := fuzzyEligible[i][0].Paper.PublicationYear

		for j := i + 1; j < len(fuzzyEligible); j++ {
			if merged[j] {
				continue
			}
			yearJ := fuzzyEligible[j][0].Paper.PublicationYear
			if yearI != yearJ {
				continue
			}
			titleJ := normalizeTitle(fuzzyEligible[j][0].Paper.Title)
			if titleSimilarity(titleI, titleJ) >= fuzzyThreshold {
				group = append(group, fuzzyEligible[j]...)
				merged[j] = true
			}
		}
		result = append(result, group)
	}

	return append(rest, result...)
}

func mergeGroup(group []Candidate) *paper.Paper {
	sorted := append([]Candidate{}, group...)
	sortByPriorityThenQuality(sorted)

	winner := *sorted[0].Paper
	identifiers := winner.Identifiers

	for _, loser := range sorted[1:] {
		identifiers = identifiers.Union(loser.Paper.Identifiers)
		backfill(&winner, loser.Paper)
	}
	winner.Identifiers = identifiers

	return &winner
}

func backfill(winner *paper.Paper, loser *paper.Paper) {
	if winner.Title == "" {
		winner.Title = loser.Title
	}
	if len(winner.Authors) == 0 {
		winner.Authors = loser.Authors
	}
	if winner.Abstract == "" {
		winner.Abstract = loser.Abstract
	}
	if winner.PublicationYear == 0 {
		winner.PublicationYear = loser.PublicationYear
	}
	if winner.Venue == "" {
		winner.Venue = loser.Venue
	}
	if len(winner.Concepts) == 0 {
		winner.Concepts = loser.Concepts
	}
	if winner.CitationCount == nil {
		winner.CitationCount = loser.CitationCount
	}
	if len(winner.References) == 0 {
		winner.References = loser.References
	}
	if winner.OpenAccessURL == "" {
		winner.OpenAccessURL = loser.OpenAccessURL
	}
}

// sortByPriorityThenQuality orders candidates so the first element is the
// group's winner: highest provenance priority, then most non-null fields,
// then earliest fetched_at.
func sortByPriorityThenQuality(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].Paper, candidates[j].Paper
		if a.SourceProvenance.Priority() != b.SourceProvenance.Priority() {
			return a.SourceProvenance.Priority() < b.SourceProvenance.Priority()
		}
		if a.NonNullFieldCount() != b.NonNullFieldCount() {
			return a.NonNullFieldCount() > b.NonNullFieldCount()
		}
		return a.FetchedAt.Before(b.FetchedAt)
	})
}

func normalizeArXivID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func normalizeTitle(title string) string {
	title = strings.ToLower(title)
	title = punctuation.ReplaceAllString(title, "")
	title = whitespace.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

func titleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(maxLen)
}

// Package contextanalyzer builds a CorpusContext from a user's existing
// paper corpus and uses it to shape discovery queries and score new papers
// for relevance against that corpus.
package contextanalyzer

import (
	"sort"
	"strings"

	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

const (
	defaultTopicLimit  = 8
	defaultAuthorLimit = 5

	weightTopic    = 0.4
	weightAuthor   = 0.3
	weightCitation = 0.3
)

// TopicStats tracks how often a topic appears and which keywords co-occur
// with it across the corpus.
type TopicStats struct {
	Count    int
	Keywords map[string]struct{}
}

// CorpusContext summarizes an existing paper corpus for query building and
// relevance scoring (spec §4.4).
type CorpusContext struct {
	Topics       map[string]*TopicStats
	KnownAuthors map[string]int
	CitedIDs     map[string]struct{}
	RecencyFrom  int
	RecencyTo    int
}

// NewCorpusContext returns an empty context, ready for accumulation.
func NewCorpusContext() *CorpusContext {
	return &CorpusContext{
		Topics:       make(map[string]*TopicStats),
		KnownAuthors: make(map[string]int),
		CitedIDs:     make(map[string]struct{}),
	}
}

// AnalyzeCorpus builds a CorpusContext by folding over every paper the
// reader yields. next returns (paper, true) per call and (zero, false) once
// exhausted, mirroring a streaming corpus reader.
func AnalyzeCorpus(next func() (*paper.Paper, bool)) *CorpusContext {
	ctx := NewCorpusContext()
	years := make([]int, 0)

	for {
		p, ok := next()
		if !ok {
			break
		}
		if p == nil {
			continue
		}

		for concept := range p.Concepts {
			key := normalizeTopic(concept)
			if key == "" {
				continue
			}
			stats, found := ctx.Topics[key]
			if !found {
				stats = &TopicStats{Keywords: make(map[string]struct{})}
				ctx.Topics[key] = stats
			}
			stats.Count++
			stats.Keywords[concept] = struct{}{}
		}

		for _, author := range p.Authors {
			name := normalizeAuthor(author.FullName)
			if name == "" {
				continue
			}
			ctx.KnownAuthors[name]++
		}

		for _, ref := range p.References {
			ref = strings.TrimSpace(ref)
			if ref != "" {
				ctx.CitedIDs[strings.ToLower(ref)] = struct{}{}
			}
		}

		if p.PublicationYear > 0 {
			years = append(years, p.PublicationYear)
		}
	}

	if len(years) > 0 {
		sort.Ints(years)
		ctx.RecencyFrom = years[0]
		ctx.RecencyTo = years[len(years)-1]
	}

	return ctx
}

// BuildQuery extracts up to K highest-frequency topics and up to M
// highest-collaboration authors, merges them with the source's explicit
// keywords, and deduplicates case-insensitively (spec §4.4).
func BuildQuery(cfg sourceconfig.SourceConfig, ctx *CorpusContext) []string {
	topics := topTopics(ctx, defaultTopicLimit)
	authors := topAuthors(ctx, defaultAuthorLimit)

	seen := make(map[string]struct{})
	var merged []string
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" {
			return
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, term)
	}

	for _, t := range topics {
		add(t)
	}
	for _, a := range authors {
		add(a)
	}
	for _, k := range cfg.Filters.Keywords {
		add(k)
	}

	return merged
}

// ScoreRelevance scores a paper against the corpus context (spec §4.4):
// topic overlap (0.4), author overlap (0.3), and citation overlap (0.3,
// absorbed into the topic weight when the paper carries no references).
func ScoreRelevance(p *paper.Paper, ctx *CorpusContext) float64 {
	topicScore := topicOverlap(p, ctx)
	authorScore := authorOverlap(p, ctx)

	if len(p.References) == 0 {
		return (weightTopic+weightCitation)*topicScore + weightAuthor*authorScore
	}
	citationScore := citationOverlap(p, ctx)
	return weightTopic*topicScore + weightAuthor*authorScore + weightCitation*citationScore
}

func topicOverlap(p *paper.Paper, ctx *CorpusContext) float64 {
	if len(p.Concepts) == 0 {
		return 0
	}
	overlap := 0
	for concept := range p.Concepts {
		if _, ok := ctx.Topics[normalizeTopic(concept)]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(1, len(p.Concepts)))
}

func authorOverlap(p *paper.Paper, ctx *CorpusContext) float64 {
	for _, author := range p.Authors {
		if _, ok := ctx.KnownAuthors[normalizeAuthor(author.FullName)]; ok {
			return 1
		}
	}
	return 0
}

func citationOverlap(p *paper.Paper, ctx *CorpusContext) float64 {
	if len(p.References) == 0 {
		return 0
	}
	overlap := 0
	for _, ref := range p.References {
		if _, ok := ctx.CitedIDs[strings.ToLower(strings.TrimSpace(ref))]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(max(1, len(p.References)))
}



func topTopics(ctx *CorpusContext, limit int) []string {
	type entry struct {
		topic string
		count int
	}
	entries := make([]entry, 0, len(ctx.Topics))
	for topic, stats := range ctx.Topics {
		entries = append(entries, entry{topic: topic, count: stats.Count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].topic < entries[j].topic
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.topic)
	}
	return out
}

func topAuthors(ctx *CorpusContext, limit int) []string {
	type entry struct {
		author string
		count  int
	}
	entries := make([]entry, 0, len(ctx.KnownAuthors))
	for author, count := range ctx.KnownAuthors {
		entries = append(entries, entry{author: author, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].author < entries[j].author
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.author)
	}
	return out
}

func normalizeTopic(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeAuthor(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

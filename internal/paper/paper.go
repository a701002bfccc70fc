// Package paper defines the normalized Paper record that every source
// adapter produces and every downstream stage (dedup, relevance, emission)
// consumes.
package paper

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provenance identifies which upstream provider produced a Paper. The zero
// value is intentionally invalid: every Paper must have its provenance set
// exactly once at construction.
type Provenance string

// Provenance values, ordered here in the priority used by the merge stage
// (highest first). Callers should use Priority, not declaration order, to
// compare two provenances.
const (
	ProvenanceCrossRef        Provenance = "CROSSREF"
	ProvenanceOpenAlex        Provenance = "OPENALEX"
	ProvenanceArXiv           Provenance = "ARXIV"
	ProvenancePubMed          Provenance = "PUBMED"
	ProvenanceSemanticScholar Provenance = "SEMANTIC_SCHOLAR"
	ProvenanceBrowser         Provenance = "BROWSER"
)

// priorityOrder fixes the merge-stage tie-break order from spec §4.5.
var priorityOrder = map[Provenance]int{
	ProvenanceCrossRef:        0,
	ProvenanceOpenAlex:        1,
	ProvenanceArXiv:           2,
	ProvenancePubMed:          3,
	ProvenanceSemanticScholar: 4,
	ProvenanceBrowser:         5,
}

// Priority returns the provenance's merge priority; lower is better.
// Unknown provenances sort last.
func (p Provenance) Priority() int {
	if rank, ok := priorityOrder[p]; ok {
		return rank
	}
	return len(priorityOrder)
}

// Valid reports whether p is one of the known provenance kinds.
func (p Provenance) Valid() bool {
	_, ok := priorityOrder[p]
	return ok
}

// Author is one entry in a Paper's ordered author list.
type Author struct {
	FullName string
	Given    string
	Family   string
}

// Identifiers is the canonical identifier set for a Paper. Any subset may be
// empty; at least one must be populated, or the (Title, FirstAuthor, Year)
// triple must be usable instead (see Paper.HasIdentity).
type Identifiers struct {
	DOI               string
	ArXivID           string
	PubMedID          string
	OpenAlexID        string
	SemanticScholarID string
}

// IsEmpty reports whether no identifier is populated.
func (ids Identifiers) IsEmpty() bool {
	return ids.DOI == "" && ids.ArXivID == "" && ids.PubMedID == "" &&
		ids.OpenAlexID == "" && ids.SemanticScholarID == ""
}

// Union returns the identifier set containing every non-empty field from
// ids and other, preferring ids's value when both set the same field.
func (ids Identifiers) Union(other Identifiers) Identifiers {
	merged := ids
	if merged.DOI == "" {
		merged.DOI = other.DOI
	}
	if merged.ArXivID == "" {
		merged.ArXivID = other.ArXivID
	}
	if merged.PubMedID == "" {
		merged.PubMedID = other.PubMedID
	}
	if merged.OpenAlexID == "" {
		merged.OpenAlexID = other.OpenAlexID
	}
	if merged.SemanticScholarID == "" {
		merged.SemanticScholarID = other.SemanticScholarID
	}
	return merged
}

// Paper is the normalized record produced by every source adapter.
type Paper struct {
	Identifiers      Identifiers
	Title            string
	Authors          []Author
	Abstract         string
	PublicationYear  int
	Venue            string
	Concepts         map[string]struct{}
	CitationCount    *int
	References       []string // identifiers of cited works, when the source exposes them
	OpenAccessURL    string
	SourceProvenance Provenance
	FetchedAt        time.Time
}

// NonNullFieldCount counts how many optional/free-text fields are populated,
// used by Dedup's same-provenance tie-break (spec §4.5).
func (p *Paper) NonNullFieldCount() int {
	count := 0
	if !p.Identifiers.IsEmpty() {
		count++
	}
	if p.Abstract != "" {
		count++
	}
	if p.Venue != "" {
		count++
	}
	if len(p.Concepts) > 0 {
		count++
	}
	if p.CitationCount != nil {
		count++
	}
	if len(p.References) > 0 {
		count++
	}
	if p.OpenAccessURL != "" {
		count++
	}
	if len(p.Authors) > 0 {
		count++
	}
	return count
}

// FirstAuthor returns the full name of the first author, or "" if there are
// no authors.
func (p *Paper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0].FullName
}

// HasIdentity reports whether the paper satisfies spec §3's identity
// invariant: at least one identifier, or a usable (title, first author,
// year) triple.
func (p *Paper) HasIdentity() bool {
	if !p.Identifiers.IsEmpty() {
		return true
	}
	return p.Title != "" && p.FirstAuthor() != "" && p.PublicationYear != 0
}

// errs for Validate, kept as sentinels so adapters/tests can match on them
// with errors.Is.
var (
	ErrEmptyTitle          = errors.New("paper: title is empty")
	ErrNoIdentity          = errors.New("paper: no identifier and no usable (title, author, year) triple")
	ErrYearOutOfRange      = errors.New("paper: publication year out of range")
	ErrProvenanceNotSet    = errors.New("paper: source_provenance is not set")
	ErrProvenanceUnknown   = errors.New("paper: source_provenance is not a recognized kind")
)

// Validate enforces every invariant from spec §3 at construction time. nowYear
// is the caller's notion of "current year", passed explicitly so the check is
// deterministic in tests.
func (p *Paper) Validate(nowYear int) error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if !p.HasIdentity() {
		return ErrNoIdentity
	}
	if p.PublicationYear != 0 {
		if p.PublicationYear < 1900 || p.PublicationYear > nowYear+1 {
			return fmt.Errorf("%w: %d", ErrYearOutOfRange, p.PublicationYear)
		}
	}
	if p.SourceProvenance == "" {
		return ErrProvenanceNotSet
	}
	if !p.SourceProvenance.Valid() {
		return fmt.Errorf("%w: %s", ErrProvenanceUnknown, p.SourceProvenance)
	}
	return nil
}

// ConceptSet builds a Concepts set from a slice of keyword strings.
func ConceptSet(keywords ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		if k == "" {
			continue
		}
		set[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
	}
	return set
}

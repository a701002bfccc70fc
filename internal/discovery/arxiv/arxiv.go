// Package arxiv implements the ArXiv source adapter: it queries ArXiv's
// public Atom-feed search API, paginates via start-index/max-results, and
// yields normalized papers.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

const (
	baseURL    = "https://export.arxiv.org/api/query"
	pageSize   = 100
	sourceName = "arxiv"
)

// Adapter implements adapter.Adapter against ArXiv's search API.
type Adapter struct {
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
	logger     logger.Interface
	retry      adapter.RetryPolicy
	baseURL    string
}

// New builds an ArXiv adapter. httpClient may be nil to use http.DefaultClient.
func New(httpClient *http.Client, limiter *ratelimiter.Limiter, log logger.Interface) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		httpClient: httpClient,
		limiter:    limiter,
		logger:     log,
		retry:      adapter.DefaultRetryPolicy,
		baseURL:    baseURL,
	}
}

// SetBaseURLForTest overrides the ArXiv API base URL, used by tests to
// point the adapter at an httptest server instead of the real API.
func SetBaseURLForTest(a *Adapter, url string) {
	a.baseURL = url
}

// RateLimitID implements adapter.Adapter.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointArXiv }

// Validate implements adapter.Adapter. ArXiv requires at least one category
// or keyword to build a non-empty search_query.
func (a *Adapter) Validate(query adapter.Query) error {
	if len(query.Categories) == 0 && len(query.Keywords) == 0 {
		return fmt.Errorf("arxiv: %w: at least one category or keyword is required", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("arxiv: %w: max_results must be >= 1", discoveryerr.ConfigError)
	}
	if err := a.Validate(query); err != nil {
		return nil, err
	}

	out := make(chan adapter.Result)
	go a.run(ctx, query, maxResults, out)
	return out, nil
}

func (a *Adapter) run(ctx context.Context, query adapter.Query, maxResults int, out chan<- adapter.Result) {
	defer close(out)

	searchQuery := buildSearchQuery(query)
	start := 0
	yielded := 0

	for yielded < maxResults {
		batchSize := pageSize
		if remaining := maxResults - yielded; remaining < batchSize {
			batchSize = remaining
		}

		var feed *atomFeed
		err := a.retry.Do(ctx, func(int) error {
			if err := a.limiter.Acquire(ctx, ratelimiter.EndpointArXiv); err != nil {
				return discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
			}
			f, fetchErr := a.fetchPage(ctx, searchQuery, start, batchSize)
			if fetchErr != nil {
				return fetchErr
			}
			feed = f
			return nil
		})
		if err != nil {
			select {
			case out <- adapter.Result{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if len(feed.Entries) == 0 {
			return
		}

		for _, entry := range feed.Entries {
			if yielded >= maxResults {
				return
			}
			p, convErr := entryToPaper(entry)
			if convErr == nil {
				convErr = p.Validate(time.Now().Year())
			}
			if convErr != nil {
				a.logger.Warn("arxiv: skipping malformed entry", "id", entry.ID, "error", convErr)
				select {
				case out <- adapter.Result{Err: discoveryerr.New(discoveryerr.KindParse, sourceName, convErr)}:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case out <- adapter.Result{Paper: p}:
				yielded++
			case <-ctx.Done():
				return
			}
		}

		start += len(feed.Entries)
	}
}

func (a *Adapter) fetchPage(ctx context.Context, searchQuery string, start, count int) (*atomFeed, error) {
	values := url.Values{}
	values.Set("search_query", searchQuery)
	values.Set("start", strconv.Itoa(start))
	values.Set("max_results", strconv.Itoa(count))
	values.Set("sortBy", "submittedDate")
	values.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, discoveryerr.New(discoveryerr.KindRateLimited, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	return &feed, nil
}

// buildSearchQuery implements spec §4.2's ArXiv query rule: categories
// OR'ed together, AND'ed with keywords OR'ed together.
func buildSearchQuery(query adapter.Query) string {
	var clauses []string
	if len(query.Categories) > 0 {
		terms := make([]string, len(query.Categories))
		for i, c := range query.Categories {
			terms[i] = "cat:" + c
		}
		clauses = append(clauses, "("+strings.Join(terms, " OR ")+")")
	}
	if len(query.Keywords) > 0 {
		terms := make([]string, len(query.Keywords))
		for i, k := range query.Keywords {
			terms[i] = "all:" + k
		}
		clauses = append(clauses, "("+strings.Join(terms, " OR ")+")")
	}
	return strings.Join(clauses, " AND ")
}

func entryToPaper(e atomEntry) (*paper.Paper, error) {
	if strings.TrimSpace(e.Title) == "" {
		return nil, fmt.Errorf("arxiv: entry %q has no title", e.ID)
	}

	authors := make([]paper.Author, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a.Name == "" {
			continue
		}
		authors = append(authors, paper.Author{FullName: a.Name})
	}

	year := 0
	published, err := time.Parse(time.RFC3339, e.Published)
	if err == nil {
		year = published.Year()
	}

	concepts := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		concepts = append(concepts, c.Term)
	}

	p := &paper.Paper{
		Identifiers:      paper.Identifiers{ArXivID: extractArXivID(e.ID), DOI: e.DOI},
		Title:            strings.TrimSpace(collapseWhitespace(e.Title)),
		Authors:          authors,
		Abstract:         strings.TrimSpace(collapseWhitespace(e.Summary)),
		PublicationYear:  year,
		Venue:            e.JournalRef,
		Concepts:         paper.ConceptSet(concepts...),
		SourceProvenance: paper.ProvenanceArXiv,
		FetchedAt:        time.Now(),
	}
	for _, l := range e.Links {
		if l.Title == "pdf" {
			p.OpenAccessURL = l.Href
		}
	}
	return p, nil
}

func extractArXivID(id string) string {
	const prefix = "http://arxiv.org/abs/"
	if strings.HasPrefix(id, prefix) {
		return id[len(prefix):]
	}
	return id
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// atomFeed is the subset of ArXiv's Atom response this adapter parses.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
	DOI        string         `xml:"http://arxiv.org/schemas/atom doi"`
	JournalRef string         `xml:"http://arxiv.org/schemas/atom journal_ref"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
}

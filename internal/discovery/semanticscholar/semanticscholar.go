// Package semanticscholar implements the Semantic Scholar source adapter:
// JSON responses, offset+limit pagination bounded by the API's hard
// max-offset, and optional x-api-key authentication.
package semanticscholar

import (
	"context"
	"encoding/json"
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
	searchURL  = "https://api.semanticscholar.org/graph/v1/paper/search"
	pageLimit  = 100
	maxOffset  = 10000
	sourceName = "semantic_scholar"
	fields     = "paperId,externalIds,title,abstract,year,citationCount,venue,authors,openAccessPdf"
)

// Adapter implements adapter.Adapter against the Semantic Scholar graph API.
type Adapter struct {
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
	logger     logger.Interface
	retry      adapter.RetryPolicy
	apiKey     string
	searchURL  string
}

// New builds a Semantic Scholar adapter. apiKey, when set, is sent as the
// x-api-key header to raise the provider's rate limit.
func New(httpClient *http.Client, limiter *ratelimiter.Limiter, log logger.Interface, apiKey string) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		httpClient: httpClient,
		limiter:    limiter,
		logger:     log,
		retry:      adapter.DefaultRetryPolicy,
		apiKey:     apiKey,
		searchURL:  searchURL,
	}
}

// SetURLForTest overrides the search endpoint, used by tests.
func SetURLForTest(a *Adapter, url string) { a.searchURL = url }

// RateLimitID implements adapter.Adapter.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointSemanticScholar }

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(query adapter.Query) error {
	if len(query.Keywords) == 0 {
		return fmt.Errorf("semantic_scholar: %w: at least one keyword is required", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("semantic_scholar: %w: max_results must be >= 1", discoveryerr.ConfigError)
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

	offset := 0
	yielded := 0

	for yielded < maxResults {
		if offset >= maxOffset {
			a.logger.Debug("semantic_scholar: reached provider max offset, stopping", "offset", offset)
			return
		}

		var page *searchResponse
		err := a.retry.Do(ctx, func(int) error {
			if err := a.limiter.Acquire(ctx, ratelimiter.EndpointSemanticScholar); err != nil {
				return discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
			}
			p, fetchErr := a.fetchPage(ctx, query, offset)
			if fetchErr != nil {
				return fetchErr
			}
			page = p
			return nil
		})
		if err != nil {
			select {
			case out <- adapter.Result{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if len(page.Data) == 0 {
			return
		}

		for _, item := range page.Data {
			if yielded >= maxResults {
				return
			}
			p, convErr := itemToPaper(item)
			if convErr == nil {
				convErr = p.Validate(time.Now().Year())
			}
			if convErr != nil {
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

		offset += len(page.Data)
		if page.Next == 0 {
			return
		}
	}
}

func (a *Adapter) fetchPage(ctx context.Context, query adapter.Query, offset int) (*searchResponse, error) {
	values := url.Values{}
	values.Set("query", strings.Join(query.Keywords, " "))
	values.Set("offset", strconv.Itoa(offset))
	values.Set("limit", strconv.Itoa(pageLimit))
	values.Set("fields", fields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.searchURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
	}
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, discoveryerr.New(discoveryerr.KindRateLimited, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, fmt.Errorf("http %d", resp.StatusCode))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	return &result, nil
}

func itemToPaper(item s2Paper) (*paper.Paper, error) {
	if strings.TrimSpace(item.Title) == "" {
		return nil, fmt.Errorf("semantic_scholar: paper %s has no title", item.PaperID)
	}

	authors := make([]paper.Author, 0, len(item.Authors))
	for _, author := range item.Authors {
		if author.Name == "" {
			continue
		}
		authors = append(authors, paper.Author{FullName: author.Name})
	}

	citationCount := item.CitationCount

	openAccessURL := ""
	if item.OpenAccessPDF != nil {
		openAccessURL = item.OpenAccessPDF.URL
	}

	return &paper.Paper{
		Identifiers: paper.Identifiers{
			SemanticScholarID: item.PaperID,
			DOI:               strings.ToLower(item.ExternalIDs.DOI),
			ArXivID:           item.ExternalIDs.ArXiv,
			PubMedID:          item.ExternalIDs.PubMed,
		},
		Title:            item.Title,
		Authors:          authors,
		Abstract:         item.Abstract,
		PublicationYear:  item.Year,
		Venue:            item.Venue,
		CitationCount:    &citationCount,
		OpenAccessURL:    openAccessURL,
		SourceProvenance: paper.ProvenanceSemanticScholar,
		FetchedAt:        time.Now(),
	}, nil
}

type searchResponse struct {
	Total  int       `json:"total"`
	Offset int       `json:"offset"`
	Next   int       `json:"next"`
	Data   []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID     string `json:"paperId"`
	ExternalIDs struct {
		DOI    string `json:"DOI"`
		ArXiv  string `json:"ArXiv"`
		PubMed string `json:"PubMed"`
	} `json:"externalIds"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	Venue         string `json:"venue"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

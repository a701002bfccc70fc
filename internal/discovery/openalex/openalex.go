// Package openalex implements the OpenAlex source adapter: JSON responses,
// cursor-based pagination, and the polite-pool contact-email parameter.
package openalex

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
	worksURL    = "https://api.openalex.org/works"
	pagePerPage = 100
	sourceName  = "openalex"
)

// Adapter implements adapter.Adapter against the OpenAlex works API.
type Adapter struct {
	httpClient   *http.Client
	limiter      *ratelimiter.Limiter
	logger       logger.Interface
	retry        adapter.RetryPolicy
	contactEmail string
	worksURL     string
}

// New builds an OpenAlex adapter.
func New(httpClient *http.Client, limiter *ratelimiter.Limiter, log logger.Interface, contactEmail string) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{
		httpClient:   httpClient,
		limiter:      limiter,
		logger:       log,
		retry:        adapter.DefaultRetryPolicy,
		contactEmail: contactEmail,
		worksURL:     worksURL,
	}
}

// SetURLForTest overrides the OpenAlex works endpoint, used by tests.
func SetURLForTest(a *Adapter, url string) { a.worksURL = url }

// RateLimitID implements adapter.Adapter.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointOpenAlex }

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(query adapter.Query) error {
	if len(query.Keywords) == 0 && len(query.Categories) == 0 {
		return fmt.Errorf("openalex: %w: at least one keyword or concept is required", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("openalex: %w: max_results must be >= 1", discoveryerr.ConfigError)
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

	cursor := "*"
	yielded := 0

	for yielded < maxResults {
		var page *worksResponse
		err := a.retry.Do(ctx, func(int) error {
			if err := a.limiter.Acquire(ctx, ratelimiter.EndpointOpenAlex); err != nil {
				return discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
			}
			p, fetchErr := a.fetchPage(ctx, query, cursor)
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

		if len(page.Results) == 0 {
			return
		}

		for _, result := range page.Results {
			if yielded >= maxResults {
				return
			}
			p, convErr := workToPaper(result)
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

		if page.Meta.NextCursor == "" {
			return
		}
		cursor = page.Meta.NextCursor
	}
}

func (a *Adapter) fetchPage(ctx context.Context, query adapter.Query, cursor string) (*worksResponse, error) {
	values := url.Values{}
	values.Set("per-page", strconv.Itoa(pagePerPage))
	values.Set("cursor", cursor)
	if a.contactEmail != "" {
		values.Set("mailto", a.contactEmail)
	}

	var filters []string
	if len(query.Categories) > 0 {
		filters = append(filters, "concepts.id:"+strings.Join(query.Categories, "|"))
	}
	if query.DateFrom != nil {
		filters = append(filters, "from_publication_date:"+query.DateFrom.Format("2006-01-02"))
	}
	if query.DateTo != nil {
		filters = append(filters, "to_publication_date:"+query.DateTo.Format("2006-01-02"))
	}
	if len(filters) > 0 {
		values.Set("filter", strings.Join(filters, ","))
	}
	if len(query.Keywords) > 0 {
		values.Set("search", strings.Join(query.Keywords, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.worksURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
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

	var result worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	return &result, nil
}

func workToPaper(w openAlexWork) (*paper.Paper, error) {
	if strings.TrimSpace(w.Title) == "" {
		return nil, fmt.Errorf("openalex: work %s has no title", w.ID)
	}

	authors := make([]paper.Author, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName == "" {
			continue
		}
		authors = append(authors, paper.Author{FullName: a.Author.DisplayName})
	}

	concepts := make([]string, 0, len(w.Concepts))
	for _, c := range w.Concepts {
		concepts = append(concepts, c.DisplayName)
	}

	venue := ""
	if w.PrimaryLocation.Source.DisplayName != "" {
		venue = w.PrimaryLocation.Source.DisplayName
	}

	citationCount := w.CitedByCount

	return &paper.Paper{
		Identifiers:      paper.Identifiers{OpenAlexID: extractOpenAlexID(w.ID), DOI: strings.TrimPrefix(w.DOI, "https://doi.org/")},
		Title:            w.Title,
		Authors:          authors,
		PublicationYear:  w.PublicationYear,
		Venue:            venue,
		Concepts:         paper.ConceptSet(concepts...),
		CitationCount:    &citationCount,
		OpenAccessURL:    w.OpenAccess.OAURL,
		SourceProvenance: paper.ProvenanceOpenAlex,
		FetchedAt:        time.Now(),
	}, nil
}

func extractOpenAlexID(id string) string {
	const prefix = "https://openalex.org/"
	return strings.TrimPrefix(id, prefix)
}

type worksResponse struct {
	Meta struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	PublicationYear int    `json:"publication_year"`
	CitedByCount    int    `json:"cited_by_count"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	Concepts []struct {
		DisplayName string `json:"display_name"`
	} `json:"concepts"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}

// Package crossref implements the CrossRef source adapter: JSON responses,
// cursor-based pagination, and the "polite pool" contact-email header.
package crossref

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
	worksURL   = "https://api.crossref.org/works"
	pageRows   = 100
	sourceName = "crossref"
)

// Adapter implements adapter.Adapter against the CrossRef works API.
type Adapter struct {
	httpClient   *http.Client
	limiter      *ratelimiter.Limiter
	logger       logger.Interface
	retry        adapter.RetryPolicy
	contactEmail string
	worksURL     string
}

// New builds a CrossRef adapter. contactEmail is sent on every request per
// CrossRef's polite-pool contract.
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

// SetURLForTest overrides the CrossRef works endpoint, used by tests.
func SetURLForTest(a *Adapter, url string) { a.worksURL = url }

// RateLimitID implements adapter.Adapter.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointCrossRef }

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(query adapter.Query) error {
	if len(query.Keywords) == 0 {
		return fmt.Errorf("crossref: %w: at least one keyword is required", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("crossref: %w: max_results must be >= 1", discoveryerr.ConfigError)
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
			if err := a.limiter.Acquire(ctx, ratelimiter.EndpointCrossRef); err != nil {
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

		if len(page.Message.Items) == 0 {
			return
		}

		for _, item := range page.Message.Items {
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

		if page.Message.NextCursor == "" {
			return
		}
		cursor = page.Message.NextCursor
	}
}

func (a *Adapter) fetchPage(ctx context.Context, query adapter.Query, cursor string) (*worksResponse, error) {
	values := url.Values{}
	values.Set("query.bibliographic", strings.Join(query.Keywords, " "))
	values.Set("rows", strconv.Itoa(pageRows))
	values.Set("cursor", cursor)

	var filters []string
	if query.DateFrom != nil {
		filters = append(filters, "from-pub-date:"+query.DateFrom.Format("2006-01-02"))
	}
	if query.DateTo != nil {
		filters = append(filters, "until-pub-date:"+query.DateTo.Format("2006-01-02"))
	}
	filters = append(filters, "type:journal-article")
	values.Set("filter", strings.Join(filters, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.worksURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
	}
	if a.contactEmail != "" {
		req.Header.Set("User-Agent", fmt.Sprintf("thoth-discovery/1.0 (mailto:%s)", a.contactEmail))
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

func itemToPaper(item workItem) (*paper.Paper, error) {
	title := ""
	if len(item.Title) > 0 {
		title = strings.TrimSpace(item.Title[0])
	}
	if title == "" {
		return nil, fmt.Errorf("crossref: item %s has no title", item.DOI)
	}

	authors := make([]paper.Author, 0, len(item.Author))
	for _, author := range item.Author {
		full := strings.TrimSpace(author.Given + " " + author.Family)
		if full == "" {
			continue
		}
		authors = append(authors, paper.Author{FullName: full, Given: author.Given, Family: author.Family})
	}

	year := 0
	if parts := item.Published.DateParts; len(parts) > 0 && len(parts[0]) > 0 {
		year = parts[0][0]
	}

	venue := ""
	if len(item.ContainerTitle) > 0 {
		venue = item.ContainerTitle[0]
	}

	return &paper.Paper{
		Identifiers:      paper.Identifiers{DOI: strings.ToLower(item.DOI)},
		Title:            title,
		Authors:          authors,
		PublicationYear:  year,
		Venue:            venue,
		CitationCount:    item.IsReferencedByCount,
		SourceProvenance: paper.ProvenanceCrossRef,
		FetchedAt:        time.Now(),
	}, nil
}

type worksResponse struct {
	Message struct {
		Items      []workItem `json:"items"`
		NextCursor string     `json:"next-cursor"`
	} `json:"message"`
}

type workItem struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Published struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"published"`
	IsReferencedByCount *int `json:"is-referenced-by-count"`
}

// Package pubmed implements the PubMed source adapter: a two-phase
// E-search (PMID list) then E-fetch (article XML, batched 100 at a time)
// against NCBI's E-utilities.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

const (
	eSearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	eFetchURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"
	fetchBatch = 100
	sourceName = "pubmed"
)

// Adapter implements adapter.Adapter against PubMed's E-utilities.
type Adapter struct {
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
	logger     logger.Interface
	retry      adapter.RetryPolicy
	apiKey     string
	eSearchURL string
	eFetchURL  string
}

// New builds a PubMed adapter. apiKey is optional; when set, PubMed's
// effective rate limit rises to 10/s, so the caller should also
// ratelimiter.Configure(EndpointPubMed, ...) accordingly.
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
		eSearchURL: eSearchURL,
		eFetchURL:  eFetchURL,
	}
}

// SetURLsForTest overrides both E-utilities endpoints, used by tests.
func SetURLsForTest(a *Adapter, eSearch, eFetch string) {
	a.eSearchURL = eSearch
	a.eFetchURL = eFetch
}

// RateLimitID implements adapter.Adapter.
func (a *Adapter) RateLimitID() ratelimiter.EndpointID { return ratelimiter.EndpointPubMed }

// Validate implements adapter.Adapter.
func (a *Adapter) Validate(query adapter.Query) error {
	if len(query.Keywords) == 0 {
		return fmt.Errorf("pubmed: %w: at least one keyword is required", discoveryerr.ConfigError)
	}
	return nil
}

// Discover implements adapter.Adapter.
func (a *Adapter) Discover(ctx context.Context, query adapter.Query, maxResults int) (<-chan adapter.Result, error) {
	if maxResults < 1 {
		return nil, fmt.Errorf("pubmed: %w: max_results must be >= 1", discoveryerr.ConfigError)
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

	var pmids []string
	err := a.retry.Do(ctx, func(int) error {
		if err := a.limiter.Acquire(ctx, ratelimiter.EndpointPubMed); err != nil {
			return discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
		}
		ids, searchErr := a.eSearch(ctx, query, maxResults)
		if searchErr != nil {
			return searchErr
		}
		pmids = ids
		return nil
	})
	if err != nil {
		select {
		case out <- adapter.Result{Err: err}:
		case <-ctx.Done():
		}
		return
	}

	yielded := 0
	for start := 0; start < len(pmids); start += fetchBatch {
		end := start + fetchBatch
		if end > len(pmids) {
			end = len(pmids)
		}
		batch := pmids[start:end]

		var articles []pubmedArticle
		fetchErr := a.retry.Do(ctx, func(int) error {
			if err := a.limiter.Acquire(ctx, ratelimiter.EndpointPubMed); err != nil {
				return discoveryerr.New(discoveryerr.KindCancelled, sourceName, err)
			}
			as, err := a.eFetch(ctx, batch)
			if err != nil {
				return err
			}
			articles = as
			return nil
		})
		if fetchErr != nil {
			select {
			case out <- adapter.Result{Err: fetchErr}:
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, article := range articles {
			if yielded >= maxResults {
				return
			}
			p, convErr := articleToPaper(article)
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
	}
}

func (a *Adapter) eSearch(ctx context.Context, query adapter.Query, maxResults int) ([]string, error) {
	values := url.Values{}
	values.Set("db", "pubmed")
	values.Set("retmode", "json")
	values.Set("retmax", fmt.Sprintf("%d", maxResults))
	values.Set("term", strings.Join(query.Keywords, " OR "))
	if a.apiKey != "" {
		values.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.eSearchURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var result eSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	return result.ESearchResult.IDList, nil
}

func (a *Adapter) eFetch(ctx context.Context, pmids []string) ([]pubmedArticle, error) {
	values := url.Values{}
	values.Set("db", "pubmed")
	values.Set("retmode", "xml")
	values.Set("id", strings.Join(pmids, ","))
	if a.apiKey != "" {
		values.Set("api_key", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.eFetchURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, discoveryerr.New(discoveryerr.KindParse, sourceName, err)
	}
	return set.Articles, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return discoveryerr.New(discoveryerr.KindRateLimited, sourceName, fmt.Errorf("http %d", code))
	case code >= 500:
		return discoveryerr.New(discoveryerr.KindTransientRemote, sourceName, fmt.Errorf("http %d", code))
	case code >= 400:
		return discoveryerr.New(discoveryerr.KindPermanentRemote, sourceName, fmt.Errorf("http %d", code))
	default:
		return nil
	}
}

func articleToPaper(a pubmedArticle) (*paper.Paper, error) {
	title := strings.TrimSpace(a.MedlineCitation.Article.ArticleTitle)
	if title == "" {
		return nil, fmt.Errorf("pubmed: article %s has no title", a.MedlineCitation.PMID)
	}

	authors := make([]paper.Author, 0, len(a.MedlineCitation.Article.AuthorList.Authors))
	for _, author := range a.MedlineCitation.Article.AuthorList.Authors {
		full := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if full == "" {
			continue
		}
		authors = append(authors, paper.Author{FullName: full, Given: author.ForeName, Family: author.LastName})
	}

	// Abstract sections are concatenated in declared order, per spec §4.2.
	var abstractParts []string
	for _, section := range a.MedlineCitation.Article.Abstract.Texts {
		abstractParts = append(abstractParts, section.Text)
	}

	year := 0
	if y := a.MedlineCitation.Article.Journal.PubDate.Year; y != "" {
		if parsed, err := time.Parse("2006", y); err == nil {
			year = parsed.Year()
		}
	}

	return &paper.Paper{
		Identifiers:      paper.Identifiers{PubMedID: a.MedlineCitation.PMID},
		Title:            title,
		Authors:          authors,
		Abstract:         strings.Join(abstractParts, " "),
		PublicationYear:  year,
		Venue:            a.MedlineCitation.Article.Journal.Title,
		SourceProvenance: paper.ProvenancePubMed,
		FetchedAt:        time.Now(),
	}, nil
}

type eSearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				Texts []struct {
					Label string `xml:"Label,attr"`
					Text  string `xml:",chardata"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title   string `xml:"Title"`
				PubDate struct {
					Year string `xml:"Year"`
				} `xml:"JournalIssue>PubDate"`
			} `xml:"Journal"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					ForeName string `xml:"ForeName"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

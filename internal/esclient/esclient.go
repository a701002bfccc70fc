// Package esclient wraps the Elasticsearch client used as the canonical
// database for SourceConfig, ScheduleState, and DiscoveryResult. Only
// SourceConfig also keeps a human-editable copy on the filesystem.
package esclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/thoth-discovery/internal/config"
)

// Client wraps an Elasticsearch client with the narrow set of document
// operations the discovery core's stores need.
type Client struct {
	es     *es.Client
	prefix string
}

// New builds a Client from the discovery core's Elasticsearch settings.
func New(cfg config.ElasticsearchConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := &http.Transport{}
	if cfg.TLSInsecureSkipVer {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in for self-signed dev clusters
	}

	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("esclient: create client: %w", err)
	}

	return &Client{es: client, prefix: cfg.IndexPrefix}, nil
}

// Index returns the full index name for a logical name, applying the
// configured prefix (e.g. "source-configs" -> "thoth-source-configs").
func (c *Client) Index(logical string) string {
	if c.prefix == "" {
		return logical
	}
	return c.prefix + "-" + logical
}

// Put upserts document under id in the given logical index.
func (c *Client) Put(ctx context.Context, logical, id string, document any) error {
	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("esclient: marshal document: %w", err)
	}

	res, err := c.es.Index(
		c.Index(logical),
		bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("esclient: index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("esclient: index document: %s", res.String())
	}
	return nil
}

// Get decodes the document stored under id in the given logical index into
// out. Returns ErrNotFound if no such document exists.
func (c *Client) Get(ctx context.Context, logical, id string, out any) error {
	res, err := c.es.Get(c.Index(logical), id, c.es.Get.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esclient: get document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.IsError() {
		return fmt.Errorf("esclient: get document: %s", res.String())
	}

	var envelope struct {
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("esclient: decode envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Source, out); err != nil {
		return fmt.Errorf("esclient: decode source: %w", err)
	}
	return nil
}

// Delete removes the document stored under id in the given logical index.
// Deleting an absent document is not an error.
func (c *Client) Delete(ctx context.Context, logical, id string) error {
	res, err := c.es.Delete(c.Index(logical), id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esclient: delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("esclient: delete document: %s", res.String())
	}
	return nil
}

// Scan runs a match-all search against the given logical index, returning
// up to size hits' raw _source documents for the caller to decode.
func (c *Client) Scan(ctx context.Context, logical string, size int) ([]json.RawMessage, error) {
	query := map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  size,
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("esclient: marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.Index(logical)),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("esclient: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("esclient: search: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("esclient: decode search response: %w", err)
	}

	out := make([]json.RawMessage, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

// Hit pairs a document's id with its decoded source, returned by ScanWithIDs
// for callers that need to issue a follow-up Delete by id.
type Hit struct {
	ID     string
	Source json.RawMessage
}

// ScanWithIDs behaves like Scan but also returns each hit's document id.
func (c *Client) ScanWithIDs(ctx context.Context, logical string, size int) ([]Hit, error) {
	query := map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  size,
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("esclient: marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.Index(logical)),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("esclient: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("esclient: search: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("esclient: decode search response: %w", err)
	}

	out := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, Hit{ID: hit.ID, Source: hit.Source})
	}
	return out, nil
}

// EnsureIndex creates the given logical index with mapping if it does not
// already exist.
func (c *Client) EnsureIndex(ctx context.Context, logical string, mapping map[string]any) error {
	existsRes, err := c.es.Indices.Exists([]string{c.Index(logical)}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esclient: check index exists: %w", err)
	}
	defer existsRes.Body.Close()
	if existsRes.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(map[string]any{"mappings": mapping})
	if err != nil {
		return fmt.Errorf("esclient: marshal mapping: %w", err)
	}

	createRes, err := c.es.Indices.Create(
		c.Index(logical),
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("esclient: create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("esclient: create index: %s", createRes.String())
	}
	return nil
}

// Ping verifies connectivity to the cluster.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("esclient: ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("esclient: ping: %s", res.String())
	}
	return nil
}

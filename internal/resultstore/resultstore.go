// Package resultstore persists DiscoveryResult documents to the canonical
// Elasticsearch store and sweeps entries past the configured retention
// window, per spec §4.9's persistence model applied to run history.
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
)

var _ dbClient = (*esclient.Client)(nil)

// indexName is the logical (unprefixed) Elasticsearch index discovery
// results are stored under.
const indexName = "discovery-results"

// document is the wire shape persisted for one DiscoveryResult.
type document struct {
	SourceName            string    `json:"source_name"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	Outcome               string    `json:"outcome"`
	CandidatesFetched     int       `json:"candidates_fetched"`
	CandidatesAfterDedup  int       `json:"candidates_after_dedup"`
	CandidatesAfterFilter int       `json:"candidates_after_filter"`
	PapersEmitted         int       `json:"papers_emitted"`
	PapersRejected        int       `json:"papers_rejected"`
	Errors                []string  `json:"errors,omitempty"`
}

// Store implements manager.ResultStore against esclient.
type Store struct {
	client    dbClient
	logger    logger.Interface
	retention time.Duration

	sweepCancel context.CancelFunc
}

// New builds a Store. retention is the age past which Sweep removes a
// result; zero disables sweeping.
func New(client *esclient.Client, log logger.Interface, retention time.Duration) *Store {
	return newStore(client, log, retention)
}

func newStore(client dbClient, log logger.Interface, retention time.Duration) *Store {
	return &Store{client: client, logger: log, retention: retention}
}

// StartSweep runs Sweep once immediately, then again every interval, until
// ctx is cancelled or StopSweep is called.
func (s *Store) StartSweep(ctx context.Context, interval time.Duration) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := s.Sweep(sweepCtx); err != nil {
			s.logger.Error("resultstore: sweep failed", "error", err)
		}

		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(sweepCtx); err != nil {
					s.logger.Error("resultstore: sweep failed", "error", err)
				}
			}
		}
	}()
}

// StopSweep stops the background sweep loop started by StartSweep.
func (s *Store) StopSweep() {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
}

// Mapping describes the Elasticsearch index mapping Store expects.
// EnsureIndex should be called once at startup.
var Mapping = map[string]any{
	"properties": map[string]any{
		"source_name":             map[string]any{"type": "keyword"},
		"started_at":              map[string]any{"type": "date"},
		"finished_at":             map[string]any{"type": "date"},
		"outcome":                 map[string]any{"type": "keyword"},
		"candidates_fetched":      map[string]any{"type": "integer"},
		"candidates_after_dedup":  map[string]any{"type": "integer"},
		"candidates_after_filter": map[string]any{"type": "integer"},
		"papers_emitted":          map[string]any{"type": "integer"},
		"papers_rejected":         map[string]any{"type": "integer"},
		"errors":                  map[string]any{"type": "text"},
	},
}

// EnsureIndex creates the discovery-results index if it does not exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	return s.client.EnsureIndex(ctx, indexName, Mapping)
}

// Save implements manager.ResultStore.
func (s *Store) Save(ctx context.Context, result manager.DiscoveryResult) error {
	doc := document{
		SourceName:            result.SourceName,
		StartedAt:             result.StartedAt,
		FinishedAt:            result.FinishedAt,
		Outcome:               string(result.Outcome),
		CandidatesFetched:     result.CandidatesFetched,
		CandidatesAfterDedup:  result.CandidatesAfterDedup,
		CandidatesAfterFilter: result.CandidatesAfterFilter,
		PapersEmitted:         result.PapersEmitted,
		PapersRejected:        result.PapersRejected,
		Errors:                result.Errors,
	}
	id := uuid.NewString()
	if err := s.client.Put(ctx, indexName, id, doc); err != nil {
		return fmt.Errorf("resultstore: save: %w", err)
	}
	return nil
}

// Sweep deletes every stored DiscoveryResult whose FinishedAt is older
// than the store's retention window. Called periodically by a background
// task; a no-op when retention is zero.
func (s *Store) Sweep(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	hits, err := s.client.ScanWithIDs(ctx, indexName, 10000)
	if err != nil {
		return fmt.Errorf("resultstore: sweep: scan: %w", err)
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0
	for _, hit := range hits {
		var doc document
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			s.logger.Warn("resultstore: sweep: decode document", "error", err)
			continue
		}
		if !doc.FinishedAt.Before(cutoff) {
			continue
		}
		if err := s.client.Delete(ctx, indexName, hit.ID); err != nil {
			s.logger.Warn("resultstore: sweep: delete document", "id", hit.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("resultstore: sweep complete", "removed", removed, "retention", s.retention)
	}
	return nil
}

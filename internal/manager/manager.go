// Package manager implements the Discovery Manager: it runs one discovery
// run for one SourceConfig end to end — build query, invoke adapter(s),
// merge, filter, emit — and records the outcome.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/dedup"
	"github.com/jonesrussell/thoth-discovery/internal/discovery/adapter"
	"github.com/jonesrussell/thoth-discovery/internal/discoveryerr"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/relevance"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

// State names one stage of a run's state machine.
type State string

const (
	StateInit          State = "INIT"
	StateBuildingQuery State = "BUILDING_QUERY"
	StateFetching      State = "FETCHING"
	StateMerging       State = "MERGING"
	StateFiltering     State = "FILTERING"
	StateEmitting      State = "EMITTING"
	StateDone          State = "DONE"
)

// fanOutKinds lists the API adapter kinds eligible for cross-provider
// aggregation when a SourceConfig sets fan_out=true. Browser never
// participates: its Discover result depends on a single declarative
// workflow, not a keyword query every provider can share.
var fanOutKinds = []sourceconfig.Kind{
	sourceconfig.KindCrossRef,
	sourceconfig.KindOpenAlex,
	sourceconfig.KindArXiv,
	sourceconfig.KindPubMed,
	sourceconfig.KindSemanticScholar,
}

// DiscoveryResult is the persisted record of one run, owned exclusively by
// the Discovery Manager.
type DiscoveryResult struct {
	SourceName            string
	StartedAt             time.Time
	FinishedAt            time.Time
	Outcome               sourceconfig.RunOutcome
	CandidatesFetched     int
	CandidatesAfterDedup  int
	CandidatesAfterFilter int
	PapersEmitted         int
	PapersRejected        int
	Errors                []string
}

// ResultStore persists a completed DiscoveryResult. Implemented by
// internal/resultstore.
type ResultStore interface {
	Save(ctx context.Context, result DiscoveryResult) error
}

// Registry resolves a SourceConfig's adapter kind to the Adapter instance
// that serves it.
type Registry map[sourceconfig.Kind]adapter.Adapter

// defaultRunTimeout caps a run when max_papers_per_run*2s would exceed it.
const defaultRunTimeout = 10 * time.Minute

const perPaperTimeoutBudget = 2 * time.Second

// Manager runs discovery runs against a fixed adapter Registry, writing
// accepted papers to Output as they are produced and persisting the final
// DiscoveryResult to Store.
type Manager struct {
	registry Registry
	store    ResultStore
	output   chan<- *paper.Paper
	logger   logger.Interface
}

// New builds a Manager. output is the shared downstream emission channel;
// the Manager never closes it, since multiple runs share it over the
// process lifetime.
func New(registry Registry, store ResultStore, output chan<- *paper.Paper, log logger.Interface) *Manager {
	return &Manager{registry: registry, store: store, output: output, logger: log}
}

// Run executes one discovery run for cfg, streaming accepted papers to the
// Manager's output channel as they are produced, and returns the completed
// DiscoveryResult. ctx cancellation ends the run early with outcome
// CANCELLED; cfg.MaxPapersPerRun bounds how many papers each adapter is
// asked for.
func (m *Manager) Run(ctx context.Context, cfg sourceconfig.SourceConfig, corpusCtx *contextanalyzer.CorpusContext) (DiscoveryResult, error) {
	result := DiscoveryResult{SourceName: cfg.Name, StartedAt: time.Now()}

	runTimeout := defaultRunTimeout
	if budget := time.Duration(cfg.MaxPapersPerRun) * perPaperTimeoutBudget; budget > 0 && budget < runTimeout {
		runTimeout = budget
	}
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	state := StateInit
	m.logger.Debug("discovery run starting", "source", cfg.Name, "state", state)

	state = StateBuildingQuery
	query := buildQuery(cfg, corpusCtx)

	state = StateFetching
	kinds := m.targetKinds(cfg)
	candidates, fetchErrs := m.fetchAll(runCtx, kinds, query, cfg.MaxPapersPerRun)
	result.Errors = append(result.Errors, fetchErrs...)
	result.CandidatesFetched = len(candidates)

	if runCtx.Err() != nil {
		result.Outcome = sourceconfig.OutcomeCancelled
		result.FinishedAt = time.Now()
		m.persist(ctx, result)
		return result, nil
	}

	state = StateMerging
	merged := dedup.Merge(candidates)
	result.CandidatesAfterDedup = len(merged)

	state = StateFiltering
	accepted, rejected := relevance.Apply(merged, cfg, corpusCtx)
	result.CandidatesAfterFilter = len(accepted)
	result.PapersRejected = len(rejected)

	state = StateEmitting
	for _, p := range accepted {
		select {
		case <-runCtx.Done():
			result.Outcome = sourceconfig.OutcomeCancelled
			result.FinishedAt = time.Now()
			m.persist(ctx, result)
			return result, nil
		case m.output <- p:
			result.PapersEmitted++
		}
	}

	state = StateDone
	result.FinishedAt = time.Now()
	result.Outcome = outcomeFor(result.PapersEmitted, fetchErrs)
	m.logger.Info("discovery run finished", "source", cfg.Name, "state", state,
		"outcome", result.Outcome, "emitted", result.PapersEmitted, "rejected", result.PapersRejected)

	m.persist(ctx, result)
	return result, nil
}

func (m *Manager) persist(ctx context.Context, result DiscoveryResult) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, result); err != nil {
		m.logger.Error("failed to persist discovery result", "source", result.SourceName, "error", err)
	}
}

// targetKinds resolves which adapter kinds a run queries: the fan-out set
// when cfg.FanOut is set, otherwise the single configured Kind.
func (m *Manager) targetKinds(cfg sourceconfig.SourceConfig) []sourceconfig.Kind {
	if cfg.FanOut {
		return fanOutKinds
	}
	return []sourceconfig.Kind{cfg.Kind}
}

func buildQuery(cfg sourceconfig.SourceConfig, corpusCtx *contextanalyzer.CorpusContext) adapter.Query {
	keywords := contextanalyzer.BuildQuery(cfg, corpusCtx)

	var categories []string
	if raw, ok := cfg.AdapterParams["categories"]; ok {
		if list, ok := raw.([]string); ok {
			categories = list
		}
	}

	return adapter.Query{
		Categories:       categories,
		Keywords:         keywords,
		DateFrom:         cfg.Filters.DateFrom,
		DateTo:           cfg.Filters.DateTo,
		MinCitationCount: cfg.Filters.MinCitationCount,
		Parameters:       cfg.AdapterParams,
	}
}

// fetchAll invokes every requested adapter kind, sequentially paginating
// each (per spec §5) but running distinct kinds concurrently when there is
// more than one (fan-out). It returns every paper candidate fetched, paired
// with the adapter kind that produced it, plus the string form of any
// adapter-level error encountered — per-adapter failures never abort the
// others.
func (m *Manager) fetchAll(ctx context.Context, kinds []sourceconfig.Kind, query adapter.Query, maxResults int) ([]dedup.Candidate, []string) {
	if maxResults < 1 {
		maxResults = sourceconfig.DefaultMaxPapersPerRun
	}

	if len(kinds) == 1 {
		candidates, err := m.fetchOne(ctx, kinds[0], query, maxResults)
		if err != nil {
			return candidates, []string{err.Error()}
		}
		return candidates, nil
	}

	var mu sync.Mutex
	var candidates []dedup.Candidate
	var errs []string
	var wg sync.WaitGroup

	for _, kind := range kinds {
		wg.Add(1)
		go func(kind sourceconfig.Kind) {
			defer wg.Done()
			got, err := m.fetchOne(ctx, kind, query, maxResults)

			mu.Lock()
			defer mu.Unlock()
			candidates = append(candidates, got...)
			if err != nil {
				errs = append(errs, err.Error())
			}
		}(kind)
	}
	wg.Wait()

	return candidates, errs
}

func (m *Manager) fetchOne(ctx context.Context, kind sourceconfig.Kind, query adapter.Query, maxResults int) ([]dedup.Candidate, error) {
	a, ok := m.registry[kind]
	if !ok {
		return nil, fmt.Errorf("manager: %w: no adapter registered for kind %q", discoveryerr.ConfigError, kind)
	}

	stream, err := a.Discover(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("manager: %s: %w", kind, err)
	}

	var candidates []dedup.Candidate
	var lastErr error
	for item := range stream {
		if item.Err != nil {
			if discoveryerr.KindOf(item.Err) != discoveryerr.KindParse {
				lastErr = item.Err
			}
			m.logger.Warn("adapter item error", "kind", kind, "error", item.Err)
			continue
		}
		candidates = append(candidates, dedup.Candidate{SourceKind: string(kind), Paper: item.Paper})
	}

	if lastErr != nil {
		return candidates, fmt.Errorf("manager: %s: %w", kind, lastErr)
	}
	return candidates, nil
}

// outcomeFor derives the run's terminal outcome from how many papers were
// emitted and which adapter errors (if any) were reported.
func outcomeFor(emitted int, errs []string) sourceconfig.RunOutcome {
	switch {
	case len(errs) == 0:
		return sourceconfig.OutcomeSuccess
	case emitted > 0:
		return sourceconfig.OutcomePartial
	default:
		return sourceconfig.OutcomeFailed
	}
}

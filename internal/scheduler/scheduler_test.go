package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/scheduler"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

type fakeConfigStore struct {
	configs []*sourceconfig.SourceConfig
}

func (f *fakeConfigStore) List(_ context.Context, activeOnly bool) ([]*sourceconfig.SourceConfig, error) {
	if !activeOnly {
		return f.configs, nil
	}
	var out []*sourceconfig.SourceConfig
	for _, c := range f.configs {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]*sourceconfig.ScheduleState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[string]*sourceconfig.ScheduleState)}
}

func (f *fakeStateStore) Get(_ context.Context, sourceName string) (*sourceconfig.ScheduleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[sourceName]
	if !ok {
		return nil, sourceconfig.ErrNotFound
	}
	return state, nil
}

func (f *fakeStateStore) Put(_ context.Context, state *sourceconfig.ScheduleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.SourceName] = state
	return nil
}

func (f *fakeStateStore) List(_ context.Context) ([]*sourceconfig.ScheduleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*sourceconfig.ScheduleState, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s)
	}
	return out, nil
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
	ran   chan struct{}
}

func (r *countingRunner) Run(_ context.Context, cfg sourceconfig.SourceConfig, _ *contextanalyzer.CorpusContext) (manager.DiscoveryResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.ran != nil {
		r.ran <- struct{}{}
	}
	return manager.DiscoveryResult{SourceName: cfg.Name, Outcome: sourceconfig.OutcomeSuccess}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func activeConfig(name string) *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name: name, Kind: sourceconfig.KindArXiv, IsActive: true,
		Schedule: sourceconfig.Schedule{IntervalMinutes: 60, Enabled: true},
	}
}

func TestScheduler_DispatchesNeverRunSourceImmediately(t *testing.T) {
	t.Parallel()

	configs := &fakeConfigStore{configs: []*sourceconfig.SourceConfig{activeConfig("arxiv_ml")}}
	states := newFakeStateStore()
	runner := &countingRunner{ran: make(chan struct{}, 1)}

	s := scheduler.New(configs, states, runner, nil, logger.NewNoOpLogger(), scheduler.Config{PollInterval: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	select {
	case <-runner.ran:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate dispatch for a never-run source")
	}

	state, err := states.Get(context.Background(), "arxiv_ml")
	require.NoError(t, err)
	require.Equal(t, sourceconfig.OutcomeSuccess, state.LastRunOutcome)
	require.True(t, state.NextRunAt.After(time.Now()))
}

func TestScheduler_TriggerIsIdempotentWhileInFlight(t *testing.T) {
	t.Parallel()

	configs := &fakeConfigStore{configs: []*sourceconfig.SourceConfig{activeConfig("arxiv_ml")}}
	states := newFakeStateStore()
	runner := &countingRunner{ran: make(chan struct{})}

	s := scheduler.New(configs, states, runner, nil, logger.NewNoOpLogger(), scheduler.Config{PollInterval: time.Hour})

	require.NoError(t, s.Trigger(context.Background(), "arxiv_ml"))
	require.NoError(t, s.Trigger(context.Background(), "arxiv_ml"))

	require.Eventually(t, func() bool { return runner.count() >= 1 }, time.Second, 10*time.Millisecond)
	// The first run blocks on the unbuffered ran channel, so the second
	// Trigger found it in flight and was dropped.
	<-runner.ran
	require.Equal(t, 1, runner.count())
}

func TestScheduler_TriggerUnknownSourceErrors(t *testing.T) {
	t.Parallel()

	configs := &fakeConfigStore{}
	s := scheduler.New(configs, newFakeStateStore(), &countingRunner{}, nil, logger.NewNoOpLogger(), scheduler.Config{})

	err := s.Trigger(context.Background(), "nonexistent")
	require.Error(t, err)
}

func TestScheduler_StatusReportsEnabledSources(t *testing.T) {
	t.Parallel()

	active := activeConfig("arxiv_ml")
	inactive := activeConfig("pubmed_genomics")
	inactive.IsActive = false
	configs := &fakeConfigStore{configs: []*sourceconfig.SourceConfig{active, inactive}}

	s := scheduler.New(configs, newFakeStateStore(), &countingRunner{}, nil, logger.NewNoOpLogger(), scheduler.Config{})

	status, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, status.SourcesTotal)
	require.Equal(t, 1, status.SourcesEnabled)
}

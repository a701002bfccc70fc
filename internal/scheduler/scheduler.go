// Package scheduler implements the persistent cron-like scheduler: it
// evaluates every active SourceConfig's due-ness on a fixed cadence and
// dispatches due runs to the Discovery Manager through a bounded worker
// pool, surviving process restarts per spec §4.8.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

// defaultPollInterval is the cadence at which the Scheduler evaluates
// ScheduleState, per spec §4.8.
const defaultPollInterval = 60 * time.Second

// defaultWorkerPoolSize bounds how many discovery runs may be in flight
// concurrently.
const defaultWorkerPoolSize = 4

// ConfigStore is the slice of sourceconfig.Store the Scheduler reads.
type ConfigStore interface {
	List(ctx context.Context, activeOnly bool) ([]*sourceconfig.SourceConfig, error)
}

// StateStore is the slice of sourceconfig.ScheduleStateStore the Scheduler
// owns exclusively.
type StateStore interface {
	Get(ctx context.Context, sourceName string) (*sourceconfig.ScheduleState, error)
	Put(ctx context.Context, state *sourceconfig.ScheduleState) error
	List(ctx context.Context) ([]*sourceconfig.ScheduleState, error)
}

// Runner executes one discovery run. Implemented by manager.Manager.
type Runner interface {
	Run(ctx context.Context, cfg sourceconfig.SourceConfig, corpusCtx *contextanalyzer.CorpusContext) (manager.DiscoveryResult, error)
}

// CorpusLoader builds the corpus context a run's query should be shaped
// against, typically by streaming the source's previously accepted papers.
type CorpusLoader func(ctx context.Context, sourceName string) (*contextanalyzer.CorpusContext, error)

// Status is the Scheduler's control-interface snapshot, per spec §6.
type Status struct {
	Running        bool
	SourcesTotal   int
	SourcesEnabled int
	NextRuns       []NextRun
}

// NextRun names one source's next scheduled dispatch.
type NextRun struct {
	SourceName string
	NextRunAt  time.Time
}

// Scheduler is a single long-lived background task that evaluates
// ScheduleState at its poll interval (defaultPollInterval unless Config sets
// one) and dispatches due runs through a
// bounded worker pool. Two runs for the same source_name are never
// in-flight simultaneously; the Scheduler holds a per-source mutex for the
// duration of each dispatched run.
type Scheduler struct {
	configs ConfigStore
	states  StateStore
	runner  Runner
	corpus  CorpusLoader
	logger  logger.Interface

	pollInterval time.Duration
	workers      chan struct{}

	mu          sync.Mutex
	isActive    bool
	done        chan struct{}
	sourceLocks map[string]*sync.Mutex
	inFlight    map[string]struct{}
}

// Config holds the tunables a New Scheduler is built from.
type Config struct {
	PollInterval   time.Duration
	WorkerPoolSize int
}

// New builds a Scheduler. corpus may be nil, in which case runs are shaped
// against an empty corpus context.
func New(configs ConfigStore, states StateStore, runner Runner, corpus CorpusLoader, log logger.Interface, cfg Config) *Scheduler {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = defaultWorkerPoolSize
	}
	if corpus == nil {
		corpus = func(context.Context, string) (*contextanalyzer.CorpusContext, error) {
			return contextanalyzer.AnalyzeCorpus(func() (*paper.Paper, bool) { return nil, false }), nil
		}
	}

	return &Scheduler{
		configs:      configs,
		states:       states,
		runner:       runner,
		corpus:       corpus,
		logger:       log,
		pollInterval: pollInterval,
		workers:      make(chan struct{}, poolSize),
		sourceLocks:  make(map[string]*sync.Mutex),
		inFlight:     make(map[string]struct{}),
	}
}

// Start begins the poll loop in a goroutine. It first recovers any runs a
// prior process crashed mid-run, then runs an immediate due-ness pass
// before settling into the ticker cadence. Calling Start while already
// running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isActive {
		s.mu.Unlock()
		return nil
	}
	s.isActive = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.recoverCrashedRuns(ctx); err != nil {
		s.logger.Error("scheduler: crash recovery failed", "error", err)
	}

	s.logger.Info("scheduler starting", "poll_interval", s.pollInterval)

	go func() {
		defer func() {
			s.mu.Lock()
			s.isActive = false
			s.mu.Unlock()
			s.logger.Info("scheduler stopped")
		}()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.evaluateDue(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.evaluateDue(ctx)
			}
		}
	}()

	return nil
}

// Stop requests the poll loop end and waits up to timeout for it to settle.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.isActive {
		s.mu.Unlock()
		return nil
	}
	done := s.done
	s.mu.Unlock()

	close(done)

	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return fmt.Errorf("scheduler: stop timed out after %s", timeout)
		case <-tick.C:
			s.mu.Lock()
			active := s.isActive
			s.mu.Unlock()
			if !active {
				return nil
			}
		}
	}
}

// Trigger manually dispatches sourceName immediately, idempotently: if a
// run is already in flight for that source, the trigger is dropped and the
// in-flight run is considered to satisfy it.
func (s *Scheduler) Trigger(ctx context.Context, sourceName string) error {
	cfg, err := s.findSource(ctx, sourceName)
	if err != nil {
		return err
	}
	s.dispatch(ctx, cfg)
	return nil
}

func (s *Scheduler) findSource(ctx context.Context, sourceName string) (*sourceconfig.SourceConfig, error) {
	cfgs, err := s.configs.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list sources: %w", err)
	}
	for _, cfg := range cfgs {
		if cfg.Name == sourceName {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("scheduler: unknown source %q", sourceName)
}

// Status implements the control-interface snapshot from spec §6.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	cfgs, err := s.configs.List(ctx, false)
	if err != nil {
		return Status{}, fmt.Errorf("scheduler: list sources: %w", err)
	}

	status := Status{SourcesTotal: len(cfgs)}
	s.mu.Lock()
	status.Running = s.isActive
	s.mu.Unlock()

	for _, cfg := range cfgs {
		if !cfg.IsActive {
			continue
		}
		status.SourcesEnabled++

		state, err := s.states.Get(ctx, cfg.Name)
		if err != nil {
			continue
		}
		status.NextRuns = append(status.NextRuns, NextRun{SourceName: cfg.Name, NextRunAt: state.NextRunAt})
	}
	return status, nil
}

// evaluateDue lists active sources, finds those whose ScheduleState is due,
// and dispatches each through the bounded worker pool.
func (s *Scheduler) evaluateDue(ctx context.Context) {
	cfgs, err := s.configs.List(ctx, true)
	if err != nil {
		s.logger.Error("scheduler: list active sources", "error", err)
		return
	}

	now := time.Now()
	for _, cfg := range cfgs {
		state, err := s.states.Get(ctx, cfg.Name)
		if err != nil {
			// Never run before: due immediately.
			s.dispatch(ctx, cfg)
			continue
		}
		if state.InFlight() {
			continue
		}
		if !state.NextRunAt.After(now) {
			s.dispatch(ctx, cfg)
		}
	}
}

// dispatch runs cfg's discovery run in a worker-pool slot, holding the
// per-source lock for the run's duration. A source already in flight is
// skipped (Trigger idempotency and evaluateDue overlap protection share
// this path).
func (s *Scheduler) dispatch(ctx context.Context, cfg *sourceconfig.SourceConfig) {
	s.mu.Lock()
	if _, busy := s.inFlight[cfg.Name]; busy {
		s.mu.Unlock()
		return
	}
	s.inFlight[cfg.Name] = struct{}{}
	lock := s.lockFor(cfg.Name)
	s.mu.Unlock()

	s.workers <- struct{}{}
	go func() {
		defer func() {
			<-s.workers
			s.mu.Lock()
			delete(s.inFlight, cfg.Name)
			s.mu.Unlock()
		}()

		lock.Lock()
		defer lock.Unlock()
		s.executeRun(ctx, cfg)
	}()
}

func (s *Scheduler) lockFor(sourceName string) *sync.Mutex {
	l, ok := s.sourceLocks[sourceName]
	if !ok {
		l = &sync.Mutex{}
		s.sourceLocks[sourceName] = l
	}
	return l
}

func (s *Scheduler) executeRun(ctx context.Context, cfg *sourceconfig.SourceConfig) {
	startedAt := time.Now()

	var priorNextRunAt time.Time
	if prior, err := s.states.Get(ctx, cfg.Name); err == nil {
		priorNextRunAt = prior.NextRunAt
	}

	if err := s.states.Put(ctx, &sourceconfig.ScheduleState{
		SourceName: cfg.Name,
		StartedAt:  &startedAt,
		NextRunAt:  priorNextRunAt,
	}); err != nil {
		s.logger.Error("scheduler: mark run started", "source", cfg.Name, "error", err)
		return
	}

	corpusCtx, err := s.corpus(ctx, cfg.Name)
	if err != nil {
		s.logger.Error("scheduler: build corpus context", "source", cfg.Name, "error", err)
		corpusCtx = contextanalyzer.AnalyzeCorpus(func() (*paper.Paper, bool) { return nil, false })
	}

	result, err := s.runner.Run(ctx, *cfg, corpusCtx)
	finishedAt := time.Now()
	outcome := result.Outcome
	lastError := ""
	if err != nil {
		outcome = sourceconfig.OutcomeFailed
		lastError = err.Error()
	} else if len(result.Errors) > 0 {
		lastError = result.Errors[len(result.Errors)-1]
	}

	next := computeNextRunAt(cfg.Schedule, finishedAt)
	if err := s.states.Put(ctx, &sourceconfig.ScheduleState{
		SourceName:     cfg.Name,
		LastRunAt:      &finishedAt,
		NextRunAt:      next,
		LastRunOutcome: outcome,
		LastError:      lastError,
		StartedAt:      &startedAt,
		FinishedAt:     &finishedAt,
	}); err != nil {
		s.logger.Error("scheduler: persist completed run state", "source", cfg.Name, "error", err)
	}
}

// recoverCrashedRuns marks every ScheduleState whose StartedAt is set but
// FinishedAt is not as FAILED, making it eligible for re-dispatch at the
// next tick — the at-least-once guarantee from spec §4.8.
func (s *Scheduler) recoverCrashedRuns(ctx context.Context) error {
	states, err := s.states.List(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list schedule state: %w", err)
	}

	for _, state := range states {
		if !state.InFlight() {
			continue
		}
		s.logger.Warn("scheduler: recovering crashed run", "source", state.SourceName)
		now := time.Now()
		state.FinishedAt = &now
		state.LastRunOutcome = sourceconfig.OutcomeFailed
		state.LastError = "process restarted mid-run"
		state.NextRunAt = now.Add(time.Minute)
		if err := s.states.Put(ctx, state); err != nil {
			s.logger.Error("scheduler: persist crash recovery", "source", state.SourceName, "error", err)
		}
	}
	return nil
}

// computeNextRunAt recomputes a source's next due time from its Schedule,
// per spec §4.8: interval_minutes adds a fixed duration; time_of_day (with
// optional days_of_week) finds the next matching wall-clock occurrence. A
// result in the past (e.g. a clock jump) is pushed to at least one minute
// from now.
func computeNextRunAt(schedule sourceconfig.Schedule, from time.Time) time.Time {
	var next time.Time
	switch {
	case schedule.TimeOfDay != "":
		next = nextTimeOfDay(schedule, from)
	case schedule.IntervalMinutes > 0:
		next = from.Add(time.Duration(schedule.IntervalMinutes) * time.Minute)
	default:
		next = from.Add(time.Hour)
	}

	if !next.After(time.Now()) {
		next = time.Now().Add(time.Minute)
	}
	return next
}

func nextTimeOfDay(schedule sourceconfig.Schedule, from time.Time) time.Time {
	hh, mm := parseTimeOfDay(schedule.TimeOfDay)

	candidate := time.Date(from.Year(), from.Month(), from.Day(), hh, mm, 0, 0, from.Location())
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	if len(schedule.DaysOfWeek) == 0 {
		return candidate
	}

	allowed := make(map[time.Weekday]struct{}, len(schedule.DaysOfWeek))
	for _, d := range schedule.DaysOfWeek {
		allowed[weekdayFromAbbrev(d)] = struct{}{}
	}
	for i := 0; i < 7; i++ {
		if _, ok := allowed[candidate.Weekday()]; ok {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func parseTimeOfDay(value string) (hour, minute int) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0
	}
	return parsed.Hour(), parsed.Minute()
}

var weekdayAbbrevs = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
	"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
}

func weekdayFromAbbrev(abbrev string) time.Weekday {
	return weekdayAbbrevs[abbrev]
}

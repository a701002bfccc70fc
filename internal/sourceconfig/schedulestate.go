package sourceconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
)

const scheduleStateIndex = "schedule-state"

// ScheduleStateStore persists ScheduleState records. It is written
// exclusively by the Scheduler; every write is serialized per source_name
// so that two concurrent writers for the same source can never interleave.
type ScheduleStateStore struct {
	db dbClient

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewScheduleStateStore constructs a ScheduleStateStore backed by db.
func NewScheduleStateStore(db *esclient.Client) *ScheduleStateStore {
	return newScheduleStateStore(db)
}

func newScheduleStateStore(db dbClient) *ScheduleStateStore {
	return &ScheduleStateStore{db: db, locks: make(map[string]*sync.Mutex)}
}

func (s *ScheduleStateStore) lockFor(sourceName string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[sourceName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceName] = l
	}
	return l
}

// Get reads the ScheduleState for sourceName, or ErrNotFound if none exists
// yet (the source has never run).
func (s *ScheduleStateStore) Get(ctx context.Context, sourceName string) (*ScheduleState, error) {
	var state ScheduleState
	if err := s.db.Get(ctx, scheduleStateIndex, sourceName, &state); err != nil {
		if errors.Is(err, esclient.ErrNotFound) {
			return nil, fmt.Errorf("sourceconfig: schedule state %q: %w", sourceName, ErrNotFound)
		}
		return nil, err
	}
	return &state, nil
}

// Put persists state atomically under its per-source lock.
func (s *ScheduleStateStore) Put(ctx context.Context, state *ScheduleState) error {
	lock := s.lockFor(state.SourceName)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Put(ctx, scheduleStateIndex, state.SourceName, state); err != nil {
		return fmt.Errorf("sourceconfig: put schedule state %q: %w", state.SourceName, err)
	}
	return nil
}

// Delete removes the ScheduleState for sourceName, called when its
// SourceConfig is hard-deleted.
func (s *ScheduleStateStore) Delete(ctx context.Context, sourceName string) error {
	lock := s.lockFor(sourceName)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Delete(ctx, scheduleStateIndex, sourceName); err != nil {
		return fmt.Errorf("sourceconfig: delete schedule state %q: %w", sourceName, err)
	}
	return nil
}

// List returns every persisted ScheduleState, used by the scheduler's
// startup crash-recovery pass.
func (s *ScheduleStateStore) List(ctx context.Context) ([]*ScheduleState, error) {
	raws, err := s.db.Scan(ctx, scheduleStateIndex, 10000)
	if err != nil {
		return nil, fmt.Errorf("sourceconfig: scan schedule state: %w", err)
	}
	out := make([]*ScheduleState, 0, len(raws))
	for _, raw := range raws {
		var state ScheduleState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("sourceconfig: decode schedule state: %w", err)
		}
		out = append(out, &state)
	}
	return out, nil
}

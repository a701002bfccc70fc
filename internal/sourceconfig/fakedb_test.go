package sourceconfig

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
)

// fakeDB is an in-memory dbClient used by store tests so they don't need a
// live Elasticsearch cluster. It round-trips documents through JSON exactly
// as esclient.Client does, to catch marshaling mistakes.
type fakeDB struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage
}

func newFakeDB() *fakeDB {
	return &fakeDB{data: make(map[string]map[string]json.RawMessage)}
}

func (f *fakeDB) Put(_ context.Context, logical, id string, document any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.Marshal(document)
	if err != nil {
		return err
	}
	if f.data[logical] == nil {
		f.data[logical] = make(map[string]json.RawMessage)
	}
	f.data[logical][id] = raw
	return nil
}

func (f *fakeDB) Get(_ context.Context, logical, id string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.data[logical][id]
	if !ok {
		return esclient.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeDB) Delete(_ context.Context, logical, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.data[logical], id)
	return nil
}

func (f *fakeDB) Scan(_ context.Context, logical string, _ int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]json.RawMessage, 0, len(f.data[logical]))
	for _, raw := range f.data[logical] {
		out = append(out, raw)
	}
	return out, nil
}

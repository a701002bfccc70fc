package resultstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
)

// fakeDB is an in-memory dbClient used by store tests so they don't need a
// live Elasticsearch cluster.
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

func (f *fakeDB) Delete(_ context.Context, logical, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.data[logical], id)
	return nil
}

func (f *fakeDB) ScanWithIDs(_ context.Context, logical string, _ int) ([]esclient.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]esclient.Hit, 0, len(f.data[logical]))
	for id, raw := range f.data[logical] {
		out = append(out, esclient.Hit{ID: id, Source: raw})
	}
	return out, nil
}

func (f *fakeDB) EnsureIndex(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

package sourceconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
)

const sourceConfigIndex = "source-configs"

// Store is the file+DB hybrid CRUD store for SourceConfig documents. The
// database is canonical; files under Dir are the human-editable surface and
// are reconciled against the database at startup. Writes go to both, guarded
// by a single global lock, so either both the file and the DB reflect a
// change or neither does.
type Store struct {
	mu     sync.Mutex
	dir    string
	db     dbClient
	logger logger.Interface
}

// NewStore constructs a Store rooted at dir, backed by db.
func NewStore(dir string, db *esclient.Client, log logger.Interface) *Store {
	return newStore(dir, db, log)
}

func newStore(dir string, db dbClient, log logger.Interface) *Store {
	return &Store{dir: dir, db: db, logger: log}
}

func (s *Store) filePath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Reconcile imports any .json file under Dir not yet present in the database, and
// writes out a file for any database row missing one. Call once at startup
// before the scheduler begins evaluating schedules.
func (s *Store) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("sourceconfig: ensure dir: %w", err)
	}

	fileConfigs, err := s.readAllFiles()
	if err != nil {
		return err
	}

	dbConfigs, err := s.readAllFromDB(ctx)
	if err != nil {
		return err
	}

	for name, cfg := range fileConfigs {
		if _, ok := dbConfigs[name]; ok {
			continue
		}
		s.logger.Info("reconciling source config from file into database", "name", name)
		if err := s.db.Put(ctx, sourceConfigIndex, name, cfg); err != nil {
			return fmt.Errorf("sourceconfig: reconcile %q into db: %w", name, err)
		}
	}

	for name, cfg := range dbConfigs {
		if _, ok := fileConfigs[name]; ok {
			continue
		}
		s.logger.Info("reconciling source config from database into file", "name", name)
		if err := writeFileAtomic(s.filePath(name), cfg); err != nil {
			return fmt.Errorf("sourceconfig: reconcile %q into file: %w", name, err)
		}
	}

	return nil
}

func (s *Store) readAllFiles() (map[string]*SourceConfig, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sourceconfig: read dir: %w", err)
	}

	out := make(map[string]*SourceConfig)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("sourceconfig: read %s: %w", e.Name(), err)
		}
		var cfg SourceConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("sourceconfig: parse %s: %w", e.Name(), err)
		}
		cfg.ApplyDefaults()
		out[cfg.Name] = &cfg
	}
	return out, nil
}

func (s *Store) readAllFromDB(ctx context.Context) (map[string]*SourceConfig, error) {
	raws, err := s.db.Scan(ctx, sourceConfigIndex, 10000)
	if err != nil {
		return nil, fmt.Errorf("sourceconfig: scan db: %w", err)
	}
	out := make(map[string]*SourceConfig, len(raws))
	for _, raw := range raws {
		var cfg SourceConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("sourceconfig: decode db row: %w", err)
		}
		out[cfg.Name] = &cfg
	}
	return out, nil
}

// Create validates cfg, applies defaults, and persists it to both the file
// and the database. Returns an error if a config with the same name already
// exists.
func (s *Store) Create(ctx context.Context, cfg *SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(s.filePath(cfg.Name)); err == nil {
		return fmt.Errorf("sourceconfig: %q already exists", cfg.Name)
	}

	return s.writeBoth(ctx, cfg)
}

// Update overwrites the SourceConfig named cfg.Name in both the file and the
// database.
func (s *Store) Update(ctx context.Context, cfg *SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.writeBoth(ctx, cfg)
}

func (s *Store) writeBoth(ctx context.Context, cfg *SourceConfig) error {
	path := s.filePath(cfg.Name)
	prev, prevErr := os.ReadFile(path)
	if err := writeFileAtomic(path, cfg); err != nil {
		return fmt.Errorf("sourceconfig: write file: %w", err)
	}
	if err := s.db.Put(ctx, sourceConfigIndex, cfg.Name, cfg); err != nil {
		if prevErr == nil {
			_ = os.WriteFile(path, prev, 0o644)
		} else {
			_ = os.Remove(path)
		}
		return fmt.Errorf("sourceconfig: write db: %w", err)
	}
	return nil
}

// Get reads the canonical SourceConfig for name from the database.
func (s *Store) Get(ctx context.Context, name string) (*SourceConfig, error) {
	var cfg SourceConfig
	if err := s.db.Get(ctx, sourceConfigIndex, name, &cfg); err != nil {
		if errors.Is(err, esclient.ErrNotFound) {
			return nil, fmt.Errorf("sourceconfig: %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &cfg, nil
}

// List returns every SourceConfig in the database, optionally restricted to
// those with IsActive set.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]*SourceConfig, error) {
	configs, err := s.readAllFromDB(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*SourceConfig, 0, len(configs))
	for _, cfg := range configs {
		if activeOnly && !cfg.IsActive {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Delete hard-deletes the SourceConfig named name from both the file and the
// database. Per the data model's lifecycle rule, callers that merely want a
// soft-delete should Update with IsActive=false instead.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev SourceConfig
	hadPrev := s.db.Get(ctx, sourceConfigIndex, name, &prev) == nil
	if err := s.db.Delete(ctx, sourceConfigIndex, name); err != nil {
		return fmt.Errorf("sourceconfig: delete db: %w", err)
	}
	if err := os.Remove(s.filePath(name)); err != nil && !os.IsNotExist(err) {
		if hadPrev {
			_ = s.db.Put(ctx, sourceConfigIndex, name, &prev)
		}
		return fmt.Errorf("sourceconfig: delete file: %w", err)
	}
	return nil
}

// ErrNotFound is returned by Get when no SourceConfig exists under name.
var ErrNotFound = errors.New("sourceconfig: not found")

// writeFileAtomic serializes v as indented JSON and writes it to path via a
// write-to-temp-then-rename, so a crash mid-write never leaves a truncated
// file in place.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

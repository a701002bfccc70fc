package sourceconfig

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) *SourceConfig {
	return &SourceConfig{
		Name:     name,
		Kind:     KindArXiv,
		IsActive: true,
		Schedule: Schedule{IntervalMinutes: 60, Enabled: true},
		Filters:  Filters{RelevanceThreshold: 0.5},
	}
}

func TestStore_CreateThenGet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := newStore(dir, newFakeDB(), logger.NewNoOpLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testConfig("arxiv_ml")))

	got, err := store.Get(ctx, "arxiv_ml")
	require.NoError(t, err)
	require.Equal(t, "arxiv_ml", got.Name)
	require.Equal(t, DefaultMaxPapersPerRun, got.MaxPapersPerRun)

	require.FileExists(t, filepath.Join(dir, "arxiv_ml.json"))
}

func TestStore_CreateRejectsDuplicateName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := newStore(dir, newFakeDB(), logger.NewNoOpLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testConfig("arxiv_ml")))
	require.Error(t, store.Create(ctx, testConfig("arxiv_ml")))
}

func TestStore_GetMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()
	store := newStore(t.TempDir(), newFakeDB(), logger.NewNoOpLogger())
	_, err := store.Get(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListActiveOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := newStore(dir, newFakeDB(), logger.NewNoOpLogger())
	ctx := context.Background()

	active := testConfig("active_source")
	inactive := testConfig("inactive_source")
	inactive.IsActive = false

	require.NoError(t, store.Create(ctx, active))
	require.NoError(t, store.Create(ctx, inactive))

	all, err := store.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	activeOnly, err := store.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	require.Equal(t, "active_source", activeOnly[0].Name)
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := newStore(dir, newFakeDB(), logger.NewNoOpLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testConfig("arxiv_ml")))
	require.NoError(t, store.Delete(ctx, "arxiv_ml"))

	_, err := store.Get(ctx, "arxiv_ml")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoFileExists(t, filepath.Join(dir, "arxiv_ml.json"))
}

func TestStore_Reconcile_ImportsFileIntoDB(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	db := newFakeDB()

	seed := newStore(dir, db, logger.NewNoOpLogger())
	require.NoError(t, writeFileAtomic(filepath.Join(dir, "orphan_file.json"), testConfig("orphan_file")))

	require.NoError(t, seed.Reconcile(context.Background()))

	got, err := seed.Get(context.Background(), "orphan_file")
	require.NoError(t, err)
	require.Equal(t, "orphan_file", got.Name)
}

func TestScheduleStateStore_PutThenGet(t *testing.T) {
	t.Parallel()
	store := newScheduleStateStore(newFakeDB())
	ctx := context.Background()

	state := &ScheduleState{SourceName: "arxiv_ml", LastRunOutcome: OutcomeSuccess}
	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, "arxiv_ml")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, got.LastRunOutcome)
}

func TestScheduleStateStore_GetMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()
	store := newScheduleStateStore(newFakeDB())
	_, err := store.Get(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)
}

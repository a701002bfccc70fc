package resultstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

func TestStore_SaveThenSweepRemovesOldResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := newFakeDB()
	store := newStore(db, logger.NewNoOpLogger(), 24*time.Hour)

	old := manager.DiscoveryResult{
		SourceName: "arxiv_ml",
		FinishedAt: time.Now().Add(-48 * time.Hour),
		Outcome:    sourceconfig.OutcomeSuccess,
	}
	recent := manager.DiscoveryResult{
		SourceName: "arxiv_ml",
		FinishedAt: time.Now(),
		Outcome:    sourceconfig.OutcomeSuccess,
	}

	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, recent))

	hits, err := db.ScanWithIDs(ctx, indexName, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	require.NoError(t, store.Sweep(ctx))

	hits, err = db.ScanWithIDs(ctx, indexName, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestStore_SweepNoopWhenRetentionZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := newFakeDB()
	store := newStore(db, logger.NewNoOpLogger(), 0)

	require.NoError(t, store.Save(ctx, manager.DiscoveryResult{
		SourceName: "arxiv_ml",
		FinishedAt: time.Now().Add(-365 * 24 * time.Hour),
	}))

	require.NoError(t, store.Sweep(ctx))

	hits, err := db.ScanWithIDs(ctx, indexName, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

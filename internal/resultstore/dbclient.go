package resultstore

import (
	"context"

	"github.com/jonesrussell/thoth-discovery/internal/esclient"
)

// dbClient is the narrow slice of esclient.Client the Store needs.
// Depending on this interface rather than the concrete client lets tests
// substitute an in-memory fake.
type dbClient interface {
	Put(ctx context.Context, logical, id string, document any) error
	Delete(ctx context.Context, logical, id string) error
	ScanWithIDs(ctx context.Context, logical string, size int) ([]esclient.Hit, error)
	EnsureIndex(ctx context.Context, logical string, mapping map[string]any) error
}

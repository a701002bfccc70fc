package sourceconfig

import (
	"context"
	"encoding/json"
)

// dbClient is the narrow slice of esclient.Client that the SourceConfig and
// ScheduleState stores need. Depending on this interface rather than the
// concrete client lets tests substitute an in-memory fake.
type dbClient interface {
	Put(ctx context.Context, logical, id string, document any) error
	Get(ctx context.Context, logical, id string, out any) error
	Delete(ctx context.Context, logical, id string) error
	Scan(ctx context.Context, logical string, size int) ([]json.RawMessage, error)
}

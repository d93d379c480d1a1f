// Package capability declares the narrow ports the sync orchestrators depend on.
// Each interface covers a single capability so that an orchestrator, and its
// tests, only ever see the handful of operations it actually calls.
package capability

import (
	"context"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

// ListFetcher fetches the current remote ranking of a category.
type ListFetcher interface {
	FetchList(ctx context.Context, category feed.Category) ([]int64, error)
}

// ItemFetcher fetches item bodies. IDs that cannot be retrieved are left out
// of the result; only a systemic failure is reported as an error.
type ItemFetcher interface {
	FetchItems(ctx context.Context, ids []int64) ([]feed.Item, error)
}

// UpdateFetcher returns the IDs the remote reports as recently changed.
type UpdateFetcher interface {
	FetchUpdates(ctx context.Context) ([]int64, error)
}

// ListReplacer atomically swaps the stored membership of a category.
type ListReplacer interface {
	ReplaceList(ctx context.Context, category feed.Category, ids []int64) error
}

// ItemStorer persists items, overwriting any previous copy.
type ItemStorer interface {
	StoreItems(ctx context.Context, items []feed.Item) error
}

// RankStorer appends rank history.
type RankStorer interface {
	StoreRankRecords(ctx context.Context, records []feed.RankRecord) error
}

// LatestRankLoader returns the most recent rank record for (id, category),
// or nil when the item has never been ranked there.
type LatestRankLoader interface {
	LoadLatestRankRecord(ctx context.Context, id int64, category feed.Category) (*feed.RankRecord, error)
}

// ConfigLoader reads the raw payload of a named scalar. ok is false when absent.
type ConfigLoader interface {
	LoadConfig(ctx context.Context, key string) (value []byte, ok bool, err error)
}

// ConfigStorer upserts the raw payload of a named scalar.
type ConfigStorer interface {
	StoreConfig(ctx context.Context, key string, value []byte) error
}

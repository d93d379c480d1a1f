package mirror

import (
	"context"
	"log/slog"

	"github.com/elonfeng/hnmirror/internal/capability"
)

const (
	// BackfillCursorKey names the config scalar holding the backfill cursor.
	BackfillCursorKey = "backfill_ptr"
	// DefaultBackfillBatch is the number of IDs past the cursor fetched per run.
	DefaultBackfillBatch = 10
)

// BackfillStore is the storage side of the backfill.
type BackfillStore interface {
	capability.ItemStorer
	capability.ConfigLoader
	capability.ConfigStorer
}

// Backfill sweeps the item ID space upward from a persisted cursor.
type Backfill struct {
	source capability.ItemFetcher
	store  BackfillStore
	batch  int64
}

// NewBackfill creates a backfill that fetches batch IDs past the cursor per run.
func NewBackfill(source capability.ItemFetcher, store BackfillStore, batch int) *Backfill {
	if batch <= 0 {
		batch = DefaultBackfillBatch
	}
	return &Backfill{source: source, store: store, batch: int64(batch)}
}

func (b *Backfill) Name() string { return "backfill" }

// Run fetches IDs cursor..cursor+batch inclusive, stores them, and moves the
// cursor to the highest ID attempted. The upper bound becomes the next lower
// bound, so one ID is fetched twice per pair of runs. Nothing is advanced when
// any step fails.
func (b *Backfill) Run(ctx context.Context) (Stats, error) {
	cursor, _, err := capability.LoadConfigAs[int64](ctx, b.store, BackfillCursorKey)
	if err != nil {
		return Stats{}, err
	}

	ids := make([]int64, 0, b.batch+1)
	for id := cursor; id <= cursor+b.batch; id++ {
		ids = append(ids, id)
	}
	next := ids[len(ids)-1]

	items, err := b.source.FetchItems(ctx, ids)
	if err != nil {
		return Stats{}, capability.Wrap("fetch items", err)
	}
	if err := b.store.StoreItems(ctx, items); err != nil {
		return Stats{}, capability.Wrap("store items", err)
	}
	if err := capability.StoreConfigAs(ctx, b.store, BackfillCursorKey, next); err != nil {
		return Stats{}, err
	}

	slog.Debug("Backfill advanced", "from", cursor, "to", next, "items", len(items))
	return Stats{Items: len(items)}, nil
}

// Cursor reports the persisted cursor, 0 when none has been stored.
func Cursor(ctx context.Context, loader capability.ConfigLoader) (int64, error) {
	cursor, _, err := capability.LoadConfigAs[int64](ctx, loader, BackfillCursorKey)
	return cursor, err
}

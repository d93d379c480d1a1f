package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/hnmirror/internal/capability"
	"github.com/elonfeng/hnmirror/pkg/feed"
)

// DefaultWindow is how many leading positions of each list are tracked.
const DefaultWindow = 30

// ListSource is the remote side of list synchronisation.
type ListSource interface {
	capability.ListFetcher
	capability.ItemFetcher
}

// ListStore is the storage side of list synchronisation.
type ListStore interface {
	capability.ListReplacer
	capability.ItemStorer
	capability.RankStorer
	capability.LatestRankLoader
}

// ListSync mirrors every category list and records rank changes.
type ListSync struct {
	source     ListSource
	store      ListStore
	window     int
	categories []feed.Category
	now        func() time.Time
}

// ListSyncOption configures a ListSync.
type ListSyncOption func(*ListSync)

// WithWindow sets how many leading positions are tracked.
func WithWindow(n int) ListSyncOption {
	return func(l *ListSync) {
		if n > 0 {
			l.window = n
		}
	}
}

// WithCategories restricts the run to the given categories, in the given order.
func WithCategories(categories ...feed.Category) ListSyncOption {
	return func(l *ListSync) {
		if len(categories) > 0 {
			l.categories = categories
		}
	}
}

// WithListClock overrides the observation clock.
func WithListClock(now func() time.Time) ListSyncOption {
	return func(l *ListSync) {
		l.now = now
	}
}

// NewListSync creates a list synchroniser.
func NewListSync(source ListSource, store ListStore, opts ...ListSyncOption) *ListSync {
	l := &ListSync{
		source:     source,
		store:      store,
		window:     DefaultWindow,
		categories: feed.AllCategories(),
		now:        utcNow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *ListSync) Name() string { return "lists" }

// Run syncs every category. A failing category is skipped and reported in
// the returned error; the remaining categories still run.
func (l *ListSync) Run(ctx context.Context) (Stats, error) {
	var (
		total Stats
		errs  []error
	)

	for _, category := range l.categories {
		stats, err := l.SyncCategory(ctx, category)
		if err != nil {
			slog.Warn("List sync failed", "category", category, "error", err)
			errs = append(errs, fmt.Errorf("category %s: %w", category, err))
			continue
		}
		slog.Debug("List synced",
			"category", category,
			"items", stats.Items,
			"rank_records", stats.RankRecords)
		total = total.add(stats)
	}

	return total, errors.Join(errs...)
}

// SyncCategory mirrors a single category.
func (l *ListSync) SyncCategory(ctx context.Context, category feed.Category) (Stats, error) {
	ids, err := l.source.FetchList(ctx, category)
	if err != nil {
		return Stats{}, capability.Wrap("fetch list", err)
	}
	if len(ids) > l.window {
		ids = ids[:l.window]
	}

	records, err := RankDeltas(ctx, l.store, category, ids, l.now())
	if err != nil {
		return Stats{}, err
	}

	items, err := l.source.FetchItems(ctx, ids)
	if err != nil {
		return Stats{}, capability.Wrap("fetch items", err)
	}

	if err := l.store.ReplaceList(ctx, category, ids); err != nil {
		return Stats{}, capability.Wrap("replace list", err)
	}
	if err := l.store.StoreItems(ctx, items); err != nil {
		return Stats{}, capability.Wrap("store items", err)
	}
	if err := l.store.StoreRankRecords(ctx, records); err != nil {
		return Stats{}, capability.Wrap("store rank records", err)
	}

	return Stats{Items: len(items), RankRecords: len(records)}, nil
}

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hnmirror/internal/capability"
	"github.com/elonfeng/hnmirror/internal/mirror"
	"github.com/elonfeng/hnmirror/pkg/feed"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleItems() []feed.Item {
	ts := time.Unix(1700000000, 0).UTC()
	return []feed.Item{
		&feed.Story{
			Base:        feed.Base{ID: 1, By: "pg", Time: ts},
			Score:       120,
			Descendants: 4,
			Title:       "Launch",
			URL:         "https://example.com",
			Kids:        []int64{2},
		},
		&feed.Comment{
			Base:   feed.Base{ID: 2, By: "dang", Time: ts.Add(time.Minute)},
			Parent: 1,
			Text:   "Nice",
		},
		&feed.Job{
			Base:  feed.Base{ID: 3, Time: ts},
			Title: "Hiring",
		},
	}
}

func TestSQLiteStore_StoreAndLoadItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	items := sampleItems()
	require.NoError(t, st.StoreItems(ctx, items))

	got, err := st.LoadItems(ctx, []int64{3, 1, 2, 99})
	require.NoError(t, err)
	assert.Equal(t, []feed.Item{items[2], items[0], items[1]}, got)

	one, err := st.LoadItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, items[0], one)

	missing, err := st.LoadItem(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)

	counts, err := st.CountItemsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[feed.Kind]int{feed.KindStory: 1, feed.KindComment: 1, feed.KindJob: 1}, counts)
}

func TestSQLiteStore_StoreItemsOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, st.StoreItems(ctx, []feed.Item{
		&feed.Story{Base: feed.Base{ID: 7, By: "a", Time: ts}, Title: "old", URL: "https://old"},
	}))
	updated := &feed.Story{Base: feed.Base{ID: 7, By: "a", Time: ts}, Title: "new", Score: 9}
	require.NoError(t, st.StoreItems(ctx, []feed.Item{updated}))

	got, err := st.LoadItem(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	var url sql.NullString
	require.NoError(t, st.db.GetContext(ctx, &url, "SELECT url FROM items WHERE id = 7"))
	assert.False(t, url.Valid, "overwrite must not merge the previous url")

	counts, err := st.CountItemsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[feed.KindStory])
}

func TestSQLiteStore_ReplaceList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	snap, err := st.LoadList(ctx, feed.CategoryTop)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, st.ReplaceList(ctx, feed.CategoryTop, []int64{1, 2, 3}))
	require.NoError(t, st.ReplaceList(ctx, feed.CategoryNew, []int64{9}))
	require.NoError(t, st.ReplaceList(ctx, feed.CategoryTop, []int64{10, 20, 30}))

	snap, err = st.LoadList(ctx, feed.CategoryTop)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, []int64{10, 20, 30}, snap.IDs)
	assert.Equal(t, feed.CategoryTop, snap.Category)
	assert.False(t, snap.UpdatedAt.IsZero())

	other, err := st.LoadList(ctx, feed.CategoryNew)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, other.IDs)

	var rows int
	require.NoError(t, st.db.GetContext(ctx, &rows, "SELECT COUNT(*) FROM item_lists WHERE category = 'top'"))
	assert.Equal(t, 1, rows)
}

func TestSQLiteStore_RankRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Second)

	latest, err := st.LoadLatestRankRecord(ctx, 1, feed.CategoryTop)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, st.StoreRankRecords(ctx, []feed.RankRecord{
		{ID: 1, Rank: 2, Category: feed.CategoryTop, Timestamp: t0},
		{ID: 1, Rank: 7, Category: feed.CategoryBest, Timestamp: t0},
	}))
	require.NoError(t, st.StoreRankRecords(ctx, []feed.RankRecord{
		{ID: 1, Rank: 1, Category: feed.CategoryTop, Timestamp: t1},
	}))

	latest, err = st.LoadLatestRankRecord(ctx, 1, feed.CategoryTop)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, feed.RankRecord{ID: 1, Rank: 1, Category: feed.CategoryTop, Timestamp: t1}, *latest)

	history, err := st.LoadItemRanks(ctx, 1, feed.CategoryTop)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Rank)
	assert.Equal(t, 1, history[1].Rank)

	since, err := st.LoadRankHistory(ctx, feed.CategoryTop, t1)
	require.NoError(t, err)
	assert.Len(t, since, 1)

	best, err := st.LoadLatestRankRecord(ctx, 1, feed.CategoryBest)
	require.NoError(t, err)
	assert.Equal(t, 7, best.Rank)
}

func TestSQLiteStore_Config(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	_, ok, err := st.LoadConfig(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, capability.StoreConfigAs(ctx, st, "foo", 42))
	got, ok, err := capability.LoadConfigAs[int](ctx, st, "foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	require.NoError(t, capability.StoreConfigAs(ctx, st, "foo", 43))
	got, _, err = capability.LoadConfigAs[int](ctx, st, "foo")
	require.NoError(t, err)
	assert.Equal(t, 43, got)
}

type staticRemote struct {
	lists map[feed.Category][]int64
	items map[int64]feed.Item
}

func (r staticRemote) FetchList(_ context.Context, c feed.Category) ([]int64, error) {
	return r.lists[c], nil
}

func (r staticRemote) FetchItems(_ context.Context, ids []int64) ([]feed.Item, error) {
	var out []feed.Item
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func TestSQLiteStore_ServesListSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	items := sampleItems()
	remote := staticRemote{
		lists: map[feed.Category][]int64{feed.CategoryTop: {1, 3}},
		items: map[int64]feed.Item{1: items[0], 3: items[2]},
	}

	ls := mirror.NewListSync(remote, st, mirror.WithCategories(feed.CategoryTop))
	stats, err := ls.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, mirror.Stats{Items: 2, RankRecords: 2}, stats)

	stats, err = ls.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RankRecords)

	snap, err := st.LoadList(ctx, feed.CategoryTop)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, snap.IDs)
}

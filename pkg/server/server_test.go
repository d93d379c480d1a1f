package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hnmirror/internal/capability"
	"github.com/elonfeng/hnmirror/internal/mirror"
	"github.com/elonfeng/hnmirror/internal/store"
	"github.com/elonfeng/hnmirror/pkg/feed"
	"github.com/elonfeng/hnmirror/pkg/trend"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, st.StoreItems(ctx, []feed.Item{
		&feed.Story{Base: feed.Base{ID: 1, By: "pg", Time: ts}, Title: "First", Score: 10},
		&feed.Story{Base: feed.Base{ID: 2, By: "tptacek", Time: ts}, Title: "Second", Score: 20},
		&feed.Comment{Base: feed.Base{ID: 3, By: "dang", Time: ts}, Parent: 1, Text: "hi"},
	}))
	require.NoError(t, st.ReplaceList(ctx, feed.CategoryTop, []int64{2, 1}))

	now := time.Now().UTC()
	require.NoError(t, st.StoreRankRecords(ctx, []feed.RankRecord{
		{ID: 1, Rank: 5, Category: feed.CategoryTop, Timestamp: now.Add(-time.Hour)},
		{ID: 2, Rank: 9, Category: feed.CategoryTop, Timestamp: now.Add(-time.Hour)},
		{ID: 1, Rank: 2, Category: feed.CategoryTop, Timestamp: now.Add(-time.Minute)},
		{ID: 2, Rank: 1, Category: feed.CategoryTop, Timestamp: now.Add(-time.Minute)},
	}))
	require.NoError(t, capability.StoreConfigAs(ctx, st, mirror.BackfillCursorKey, int64(40)))

	srv := New(st, trend.NewEngine(st, 6*time.Hour), "", opts...)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv, st
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestList(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body struct {
		Category string            `json:"category"`
		IDs      []int64           `json:"ids"`
		Items    []json.RawMessage `json:"items"`
		Count    int               `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lists/top", &body))
	assert.Equal(t, "top", body.Category)
	assert.Equal(t, []int64{2, 1}, body.IDs)
	require.Len(t, body.Items, 2)

	first, err := feed.DecodeItem(body.Items[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.GetID())
}

func TestList_Errors(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/lists/best", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/lists/bogus", nil))
}

func TestItem(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var raw json.RawMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/items/3", &raw))
	it, err := feed.DecodeItem(raw)
	require.NoError(t, err)
	c, ok := it.(*feed.Comment)
	require.True(t, ok)
	assert.Equal(t, int64(1), c.Parent)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/items/404", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/items/abc", nil))
}

func TestItemRanks(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body struct {
		Data  []feed.RankRecord `json:"data"`
		Count int               `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/items/1/ranks?category=top", &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, 5, body.Data[0].Rank)
	assert.Equal(t, 2, body.Data[1].Rank)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/items/1/ranks?category=nope", nil))
}

func TestMovers(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body struct {
		Data []trend.Mover `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/movers/top?limit=1", &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(2), body.Data[0].ID)
	assert.Equal(t, 8, body.Data[0].Delta)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/movers/top?limit=-1", nil))
}

func TestStats(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	var body struct {
		Items          map[string]int `json:"items"`
		Lists          map[string]int `json:"lists"`
		BackfillCursor int64          `json:"backfill_cursor"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/stats", &body))
	assert.Equal(t, 2, body.Items["story"])
	assert.Equal(t, 1, body.Items["comment"])
	assert.Equal(t, map[string]int{"top": 2}, body.Lists)
	assert.Equal(t, int64(40), body.BackfillCursor)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hnmirror_items_stored 1\n"))
	})
	srv, _ := newTestServer(t, WithMetricsHandler(metrics))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	plain, _ := newTestServer(t)
	resp2, err := http.Get(plain.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

type brokenReader struct{ err error }

func (b brokenReader) LoadItem(context.Context, int64) (feed.Item, error) { return nil, b.err }
func (b brokenReader) LoadItems(context.Context, []int64) ([]feed.Item, error) {
	return nil, b.err
}
func (b brokenReader) LoadList(context.Context, feed.Category) (*feed.ListSnapshot, error) {
	return nil, b.err
}
func (b brokenReader) LoadItemRanks(context.Context, int64, feed.Category) ([]feed.RankRecord, error) {
	return nil, b.err
}
func (b brokenReader) CountItemsByKind(context.Context) (map[feed.Kind]int, error) {
	return nil, b.err
}
func (b brokenReader) LoadConfig(context.Context, string) ([]byte, bool, error) {
	return nil, false, b.err
}

func (b brokenReader) LoadRankHistory(context.Context, feed.Category, time.Time) ([]feed.RankRecord, error) {
	return nil, b.err
}

func TestStorageErrorsAreNotExposed(t *testing.T) {
	t.Parallel()

	reader := brokenReader{err: errors.New("SQL logic error: no such table: items (1)")}
	srv := httptest.NewServer(New(reader, trend.NewEngine(reader, time.Hour), "").Handler())
	defer srv.Close()

	for _, path := range []string{
		"/api/v1/lists/top",
		"/api/v1/items/1",
		"/api/v1/items/1/ranks",
		"/api/v1/movers/top",
		"/api/v1/stats",
	} {
		t.Run(path, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+path, &body))
			assert.Equal(t, "Internal Server Error", body["error"])
		})
	}

	// Client errors still explain themselves.
	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/lists/bogus", &body))
	assert.Contains(t, body["error"], "bogus")
}

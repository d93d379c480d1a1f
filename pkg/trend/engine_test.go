package trend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id int64, rank int, offset time.Duration) feed.RankRecord {
	return feed.RankRecord{ID: id, Rank: rank, Category: feed.CategoryTop, Timestamp: t0.Add(offset)}
}

type historyStub struct {
	records []feed.RankRecord
	err     error
	since   time.Time
}

func (h *historyStub) LoadRankHistory(_ context.Context, _ feed.Category, since time.Time) ([]feed.RankRecord, error) {
	h.since = since
	return h.records, h.err
}

func TestRank(t *testing.T) {
	t.Parallel()

	records := []feed.RankRecord{
		rec(1, 20, 0),
		rec(2, 5, 0),
		rec(3, 30, 0),
		rec(1, 10, time.Hour),
		rec(2, 8, time.Hour),
		rec(3, 10, 2*time.Hour),
		rec(4, 1, 2*time.Hour),
	}

	movers := Rank(records, 0)
	require.Len(t, movers, 2, "only items that climbed are movers")

	assert.Equal(t, int64(3), movers[0].ID)
	assert.Equal(t, 20, movers[0].Delta)
	assert.Equal(t, 30, movers[0].FromRank)
	assert.Equal(t, 10, movers[0].CurrentRank)
	assert.InDelta(t, 10.0, movers[0].Velocity, 1e-9)

	assert.Equal(t, int64(1), movers[1].ID)
	assert.Equal(t, 10, movers[1].Delta)
	assert.Equal(t, 2, movers[1].Observations)
}

func TestRank_TiesAndLimit(t *testing.T) {
	t.Parallel()

	records := []feed.RankRecord{
		rec(1, 10, 0),
		rec(2, 12, 0),
		rec(1, 5, 2*time.Hour),
		rec(2, 7, time.Hour),
	}

	movers := Rank(records, 1)
	require.Len(t, movers, 1)
	assert.Equal(t, int64(2), movers[0].ID, "equal climbs favour the faster one")
}

func TestEngine_Movers(t *testing.T) {
	t.Parallel()

	stub := &historyStub{records: []feed.RankRecord{rec(1, 9, 0), rec(1, 2, time.Hour)}}
	e := NewEngine(stub, time.Hour)
	e.now = func() time.Time { return t0.Add(2 * time.Hour) }

	movers, err := e.Movers(context.Background(), feed.CategoryTop, 10)
	require.NoError(t, err)
	require.Len(t, movers, 1)
	assert.Equal(t, 7, movers[0].Delta)
	assert.Equal(t, t0.Add(time.Hour), stub.since)
}

func TestEngine_MoversError(t *testing.T) {
	t.Parallel()

	e := NewEngine(&historyStub{err: errors.New("db closed")}, 0)
	_, err := e.Movers(context.Background(), feed.CategoryTop, 10)
	assert.ErrorContains(t, err, "db closed")
	assert.Equal(t, DefaultLookback, e.lookback)
}

func TestVelocity(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 4.0, Velocity(2, 30*time.Minute), 1e-9)
	assert.InDelta(t, 60.0, Velocity(1, time.Second), 1e-9)
}

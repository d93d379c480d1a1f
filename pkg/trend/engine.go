// Package trend derives rank movement from the recorded rank history.
package trend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

// DefaultLookback is how far back Movers looks when none is given.
const DefaultLookback = 6 * time.Hour

// HistoryLoader reads rank records of a category observed at or after since.
type HistoryLoader interface {
	LoadRankHistory(ctx context.Context, category feed.Category, since time.Time) ([]feed.RankRecord, error)
}

// Mover is an item that climbed a list within the lookback window.
type Mover struct {
	ID           int64         `json:"id"`
	Category     feed.Category `json:"category"`
	FromRank     int           `json:"from_rank"`
	CurrentRank  int           `json:"current_rank"`
	Delta        int           `json:"delta"`
	Velocity     float64       `json:"velocity"`
	Observations int           `json:"observations"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
}

// Engine computes movers from a HistoryLoader.
type Engine struct {
	store    HistoryLoader
	lookback time.Duration
	now      func() time.Time
}

// NewEngine creates a new movers engine.
func NewEngine(s HistoryLoader, lookback time.Duration) *Engine {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Engine{
		store:    s,
		lookback: lookback,
		now:      time.Now,
	}
}

// Movers returns up to limit items of category that gained the most
// positions within the lookback window, best climber first.
func (e *Engine) Movers(ctx context.Context, category feed.Category, limit int) ([]Mover, error) {
	since := e.now().Add(-e.lookback)
	records, err := e.store.LoadRankHistory(ctx, category, since)
	if err != nil {
		return nil, fmt.Errorf("load rank history: %w", err)
	}
	return Rank(records, limit), nil
}

// Rank groups records by item and orders the climbers. Records must be
// ordered by timestamp. A non-positive limit returns every climber.
func Rank(records []feed.RankRecord, limit int) []Mover {
	byID := make(map[int64]*Mover)
	var order []int64

	for _, r := range records {
		m, ok := byID[r.ID]
		if !ok {
			m = &Mover{
				ID:        r.ID,
				Category:  r.Category,
				FromRank:  r.Rank,
				FirstSeen: r.Timestamp,
			}
			byID[r.ID] = m
			order = append(order, r.ID)
		}
		m.CurrentRank = r.Rank
		m.LastSeen = r.Timestamp
		m.Observations++
	}

	movers := make([]Mover, 0, len(order))
	for _, id := range order {
		m := byID[id]
		m.Delta = m.FromRank - m.CurrentRank
		if m.Delta <= 0 {
			continue
		}
		m.Velocity = Velocity(m.Delta, m.LastSeen.Sub(m.FirstSeen))
		movers = append(movers, *m)
	}

	sort.SliceStable(movers, func(i, j int) bool {
		if movers[i].Delta != movers[j].Delta {
			return movers[i].Delta > movers[j].Delta
		}
		if movers[i].Velocity != movers[j].Velocity {
			return movers[i].Velocity > movers[j].Velocity
		}
		return movers[i].CurrentRank < movers[j].CurrentRank
	})

	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}
	return movers
}

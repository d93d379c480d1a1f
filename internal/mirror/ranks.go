// Package mirror holds the orchestrators that copy Hacker News into the local store.
package mirror

import (
	"context"
	"time"

	"github.com/elonfeng/hnmirror/internal/capability"
	"github.com/elonfeng/hnmirror/pkg/feed"
)

// RankDeltas decides which rank records a new snapshot of category produces.
// ids is ordered, so position p means rank p+1. An item gets a record when it
// has no prior record in category or its latest recorded rank differs.
// Items missing from ids produce nothing.
func RankDeltas(
	ctx context.Context,
	loader capability.LatestRankLoader,
	category feed.Category,
	ids []int64,
	ts time.Time,
) ([]feed.RankRecord, error) {
	var records []feed.RankRecord

	for pos, id := range ids {
		rank := pos + 1

		prev, err := loader.LoadLatestRankRecord(ctx, id, category)
		if err != nil {
			return nil, capability.Wrap("load latest rank", err)
		}
		if prev != nil && prev.Rank == rank {
			continue
		}

		records = append(records, feed.RankRecord{
			ID:        id,
			Rank:      rank,
			Category:  category,
			Timestamp: ts,
		})
	}

	return records, nil
}

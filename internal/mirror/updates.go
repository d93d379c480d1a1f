package mirror

import (
	"context"

	"github.com/elonfeng/hnmirror/internal/capability"
)

// UpdateSource is the remote side of the update poll.
type UpdateSource interface {
	capability.UpdateFetcher
	capability.ItemFetcher
}

// UpdatePoll refreshes the items the remote reports as recently changed.
type UpdatePoll struct {
	source UpdateSource
	store  capability.ItemStorer
}

// NewUpdatePoll creates an update poller.
func NewUpdatePoll(source UpdateSource, store capability.ItemStorer) *UpdatePoll {
	return &UpdatePoll{source: source, store: store}
}

func (u *UpdatePoll) Name() string { return "updates" }

// Run re-fetches and overwrites exactly the changed IDs.
func (u *UpdatePoll) Run(ctx context.Context) (Stats, error) {
	ids, err := u.source.FetchUpdates(ctx)
	if err != nil {
		return Stats{}, capability.Wrap("fetch updates", err)
	}

	items, err := u.source.FetchItems(ctx, ids)
	if err != nil {
		return Stats{}, capability.Wrap("fetch items", err)
	}

	if err := u.store.StoreItems(ctx, items); err != nil {
		return Stats{}, capability.Wrap("store items", err)
	}

	return Stats{Items: len(items)}, nil
}

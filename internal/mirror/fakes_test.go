package mirror

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

var errBoom = errors.New("boom")

func story(id int64, title string) *feed.Story {
	return &feed.Story{
		Base:  feed.Base{ID: id, By: "pg", Time: time.Unix(1700000000+id, 0).UTC()},
		Title: title,
	}
}

// fakeRemote is an in-memory stand-in for the Hacker News API.
type fakeRemote struct {
	mu       sync.Mutex
	lists    map[feed.Category][]int64
	items    map[int64]feed.Item
	updates  []int64
	listErr  map[feed.Category]error
	itemsErr error
	updErr   error
	fetched  [][]int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		lists:   map[feed.Category][]int64{},
		items:   map[int64]feed.Item{},
		listErr: map[feed.Category]error{},
	}
}

func (r *fakeRemote) FetchList(_ context.Context, c feed.Category) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.listErr[c]; err != nil {
		return nil, err
	}
	return append([]int64(nil), r.lists[c]...), nil
}

func (r *fakeRemote) FetchItems(_ context.Context, ids []int64) ([]feed.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = append(r.fetched, append([]int64(nil), ids...))
	if r.itemsErr != nil {
		return nil, r.itemsErr
	}
	var out []feed.Item
	for _, id := range ids {
		if it, ok := r.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *fakeRemote) FetchUpdates(context.Context) ([]int64, error) {
	if r.updErr != nil {
		return nil, r.updErr
	}
	return append([]int64(nil), r.updates...), nil
}

// fakeStore keeps everything in maps and can be told to fail specific calls.
type fakeStore struct {
	mu         sync.Mutex
	lists      map[feed.Category][]int64
	items      map[int64]feed.Item
	ranks      []feed.RankRecord
	config     map[string][]byte
	itemWrites int

	replaceErr error
	itemsErr   error
	ranksErr   error
	loadErr    error
	configErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists:  map[feed.Category][]int64{},
		items:  map[int64]feed.Item{},
		config: map[string][]byte{},
	}
}

func (s *fakeStore) ReplaceList(_ context.Context, c feed.Category, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.lists[c] = append([]int64(nil), ids...)
	return nil
}

func (s *fakeStore) StoreItems(_ context.Context, items []feed.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.itemsErr != nil {
		return s.itemsErr
	}
	for _, it := range items {
		s.items[it.GetID()] = it
		s.itemWrites++
	}
	return nil
}

func (s *fakeStore) StoreRankRecords(_ context.Context, records []feed.RankRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ranksErr != nil {
		return s.ranksErr
	}
	s.ranks = append(s.ranks, records...)
	return nil
}

func (s *fakeStore) LoadLatestRankRecord(_ context.Context, id int64, c feed.Category) (*feed.RankRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var latest *feed.RankRecord
	for i := range s.ranks {
		r := s.ranks[i]
		if r.ID != id || r.Category != c {
			continue
		}
		if latest == nil || !r.Timestamp.Before(latest.Timestamp) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeStore) LoadConfig(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configErr != nil {
		return nil, false, s.configErr
	}
	v, ok := s.config[key]
	return v, ok, nil
}

func (s *fakeStore) StoreConfig(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configErr != nil {
		return s.configErr
	}
	s.config[key] = value
	return nil
}

func (s *fakeStore) itemIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

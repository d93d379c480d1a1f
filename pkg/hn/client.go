// Package hn is a client for the Hacker News Firebase API.
package hn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

// DefaultBaseURL is the public Hacker News API root.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 10
	defaultRetries     = 3
)

// ErrNotFound is returned when the API answers 404 for a path.
var ErrNotFound = errors.New("not found")

// Client fetches lists, items and updates from Hacker News.
type Client struct {
	client      *http.Client
	baseURL     string
	concurrency int
	retries     uint
	retryWait   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithConcurrency bounds parallel item fetches.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRetries sets how many attempts a request gets, including the first.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = uint(n)
		}
	}
}

// WithRetryWait sets the initial backoff between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// New creates a new Hacker News client.
func New(opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: defaultTimeout},
		baseURL:     DefaultBaseURL,
		concurrency: defaultConcurrency,
		retries:     defaultRetries,
		retryWait:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// listPaths maps categories onto their endpoints.
var listPaths = map[feed.Category]string{
	feed.CategoryTop:  "/topstories.json",
	feed.CategoryNew:  "/newstories.json",
	feed.CategoryBest: "/beststories.json",
	feed.CategoryAsk:  "/askstories.json",
	feed.CategoryShow: "/showstories.json",
	feed.CategoryJob:  "/jobstories.json",
}

// FetchList returns the ranked IDs of a category.
func (c *Client) FetchList(ctx context.Context, category feed.Category) ([]int64, error) {
	path, ok := listPaths[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	var ids []int64
	if err := c.getJSON(ctx, path, &ids); err != nil {
		return nil, fmt.Errorf("fetch %s stories: %w", category, err)
	}
	return ids, nil
}

type updates struct {
	Items    []int64  `json:"items"`
	Profiles []string `json:"profiles"`
}

// FetchUpdates returns the item IDs the API reports as recently changed.
func (c *Client) FetchUpdates(ctx context.Context) ([]int64, error) {
	var u updates
	if err := c.getJSON(ctx, "/updates.json", &u); err != nil {
		return nil, fmt.Errorf("fetch updates: %w", err)
	}
	return u.Items, nil
}

// MaxItemID returns the newest item ID.
func (c *Client) MaxItemID(ctx context.Context) (int64, error) {
	var id int64
	if err := c.getJSON(ctx, "/maxitem.json", &id); err != nil {
		return 0, fmt.Errorf("fetch max item: %w", err)
	}
	return id, nil
}

// FetchItem returns a single item. It returns nil without error when the ID
// does not exist or is of a kind that is not mirrored.
func (c *Client) FetchItem(ctx context.Context, id int64) (feed.Item, error) {
	body, err := c.get(ctx, fmt.Sprintf("/item/%d.json", id))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch hn item %d: %w", id, err)
	}
	if isNull(body) {
		return nil, nil
	}

	item, err := feed.DecodeItem(body)
	if errors.Is(err, feed.ErrUnsupportedKind) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FetchItems fetches ids concurrently. Missing items are dropped silently and
// individual failures are logged and dropped. It returns an error when ctx
// ends or when every requested ID failed. Results keep the order of ids.
func (c *Client) FetchItems(ctx context.Context, ids []int64) ([]feed.Item, error) {
	results := make([]feed.Item, len(ids))
	failures := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			item, err := c.FetchItem(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Debug("Dropping item", "id", id, "error", err)
				failures[i] = err
				return nil
			}
			results[i] = item
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}

	failed := 0
	var firstErr error
	for _, err := range failures {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(ids) > 0 && failed == len(ids) {
		return nil, fmt.Errorf("fetch items: all %d requests failed: %w", failed, firstErr)
	}

	items := make([]feed.Item, 0, len(ids))
	for _, it := range results {
		if it != nil {
			items = append(items, it)
		}
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// get performs a GET with retries. 5xx and 429 responses and transport
// errors are retried; other non-2xx statuses fail immediately. A 404 is
// reported as ErrNotFound.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait

	return backoff.Retry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "hnmirror/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(fmt.Errorf("%s: %w", path, ErrNotFound))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return body, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.retries))
}

func isNull(body []byte) bool {
	return bytes.Equal(bytes.TrimSpace(body), []byte("null"))
}

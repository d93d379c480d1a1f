package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/hnmirror/pkg/feed"
)

// itemRow is the storage shape of an item.
type itemRow struct {
	ID          int64          `db:"id"`
	Kind        string         `db:"kind"`
	Original    string         `db:"original"`
	Author      sql.NullString `db:"author"`
	Score       sql.NullInt64  `db:"score"`
	Descendants sql.NullInt64  `db:"descendants"`
	Title       sql.NullString `db:"title"`
	URL         sql.NullString `db:"url"`
	Body        sql.NullString `db:"body"`
	CreatedAt   int64          `db:"created_at"`
	FetchedAt   int64          `db:"fetched_at"`
}

type rankRow struct {
	ID       int64  `db:"id"`
	Rank     int    `db:"rank"`
	Category string `db:"category"`
	TS       int64  `db:"ts"`
}

func (r rankRow) record() feed.RankRecord {
	return feed.RankRecord{
		ID:        r.ID,
		Rank:      r.Rank,
		Category:  feed.Category(r.Category),
		Timestamp: time.Unix(0, r.TS).UTC(),
	}
}

type listRow struct {
	Category  string `db:"category"`
	IDs       string `db:"ids"`
	UpdatedAt int64  `db:"updated_at"`
}

// Store is the persistence interface: every storage port plus the read
// queries behind the HTTP API.
type Store interface {
	StoreItems(ctx context.Context, items []feed.Item) error
	LoadItem(ctx context.Context, id int64) (feed.Item, error)
	LoadItems(ctx context.Context, ids []int64) ([]feed.Item, error)
	CountItemsByKind(ctx context.Context) (map[feed.Kind]int, error)

	ReplaceList(ctx context.Context, category feed.Category, ids []int64) error
	LoadList(ctx context.Context, category feed.Category) (*feed.ListSnapshot, error)

	StoreRankRecords(ctx context.Context, records []feed.RankRecord) error
	LoadLatestRankRecord(ctx context.Context, id int64, category feed.Category) (*feed.RankRecord, error)
	LoadItemRanks(ctx context.Context, id int64, category feed.Category) ([]feed.RankRecord, error)
	LoadRankHistory(ctx context.Context, category feed.Category, since time.Time) ([]feed.RankRecord, error)

	LoadConfig(ctx context.Context, key string) ([]byte, bool, error)
	StoreConfig(ctx context.Context, key string, value []byte) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StoreItems writes items in one transaction, replacing any stored copy.
func (s *SQLiteStore) StoreItems(ctx context.Context, items []feed.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store items: %w", err)
	}
	defer tx.Rollback()

	fetchedAt := s.now().UnixNano()
	for _, it := range items {
		row, err := toRow(it, fetchedAt)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO items (id, kind, original, author, score, descendants, title, url, body, created_at, fetched_at)
			VALUES (:id, :kind, :original, :author, :score, :descendants, :title, :url, :body, :created_at, :fetched_at)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind,
				original = excluded.original,
				author = excluded.author,
				score = excluded.score,
				descendants = excluded.descendants,
				title = excluded.title,
				url = excluded.url,
				body = excluded.body,
				created_at = excluded.created_at,
				fetched_at = excluded.fetched_at
		`, row)
		if err != nil {
			return fmt.Errorf("upsert item %d: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store items: %w", err)
	}
	return nil
}

func toRow(it feed.Item, fetchedAt int64) (itemRow, error) {
	original, err := feed.EncodeItem(it)
	if err != nil {
		return itemRow{}, err
	}
	f := feed.Project(it)
	return itemRow{
		ID:          it.GetID(),
		Kind:        string(it.Kind()),
		Original:    string(original),
		Author:      nullString(f.Author),
		Score:       nullInt(f.Score),
		Descendants: nullInt(f.Descendants),
		Title:       nullString(f.Title),
		URL:         nullString(f.URL),
		Body:        nullString(f.Body),
		CreatedAt:   feed.Timestamp(it).UnixNano(),
		FetchedAt:   fetchedAt,
	}, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// LoadItem returns the stored item, or nil if it was never stored.
func (s *SQLiteStore) LoadItem(ctx context.Context, id int64) (feed.Item, error) {
	var original string
	err := s.db.GetContext(ctx, &original, "SELECT original FROM items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return feed.DecodeItem([]byte(original))
}

// LoadItems returns the stored items among ids, in the order of ids.
func (s *SQLiteStore) LoadItems(ctx context.Context, ids []int64) ([]feed.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In("SELECT id, original FROM items WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("build load items: %w", err)
	}

	var rows []struct {
		ID       int64  `db:"id"`
		Original string `db:"original"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	byID := make(map[int64]feed.Item, len(rows))
	for _, r := range rows {
		it, err := feed.DecodeItem([]byte(r.Original))
		if err != nil {
			return nil, err
		}
		byID[r.ID] = it
	}

	items := make([]feed.Item, 0, len(rows))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			items = append(items, it)
		}
	}
	return items, nil
}

func (s *SQLiteStore) CountItemsByKind(ctx context.Context) (map[feed.Kind]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT kind, COUNT(*) AS cnt FROM items GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("count items by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[feed.Kind]int)
	for rows.Next() {
		var kind string
		var cnt int
		if err := rows.Scan(&kind, &cnt); err != nil {
			return nil, err
		}
		counts[feed.Kind(kind)] = cnt
	}
	return counts, rows.Err()
}

// ReplaceList swaps the membership of category in a single transaction.
func (s *SQLiteStore) ReplaceList(ctx context.Context, category feed.Category, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode list %s: %w", category, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace list: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM item_lists WHERE category = ?", category.String()); err != nil {
		return fmt.Errorf("delete list %s: %w", category, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO item_lists (category, ids, updated_at) VALUES (?, ?, ?)",
		category.String(), string(idsJSON), s.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert list %s: %w", category, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace list: %w", err)
	}
	return nil
}

// LoadList returns the current snapshot of category, or nil if none was stored.
func (s *SQLiteStore) LoadList(ctx context.Context, category feed.Category) (*feed.ListSnapshot, error) {
	var row listRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM item_lists WHERE category = ?", category.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list %s: %w", category, err)
	}

	snap := &feed.ListSnapshot{
		Category:  category,
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(row.IDs), &snap.IDs); err != nil {
		return nil, fmt.Errorf("decode list %s: %w", category, err)
	}
	return snap, nil
}

// StoreRankRecords appends records in a single transaction.
func (s *SQLiteStore) StoreRankRecords(ctx context.Context, records []feed.RankRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store ranks: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_ranks (id, rank, category, ts) VALUES (?, ?, ?, ?)
			ON CONFLICT(id, category, ts) DO NOTHING
		`, r.ID, r.Rank, r.Category.String(), r.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("insert rank %d/%s: %w", r.ID, r.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store ranks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadLatestRankRecord(ctx context.Context, id int64, category feed.Category) (*feed.RankRecord, error) {
	var row rankRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, rank, category, ts FROM item_ranks
		WHERE id = ? AND category = ?
		ORDER BY ts DESC
		LIMIT 1
	`, id, category.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest rank %d/%s: %w", id, category, err)
	}
	rec := row.record()
	return &rec, nil
}

// LoadItemRanks returns the rank history of one item in category, oldest first.
func (s *SQLiteStore) LoadItemRanks(ctx context.Context, id int64, category feed.Category) ([]feed.RankRecord, error) {
	var rows []rankRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, rank, category, ts FROM item_ranks
		WHERE id = ? AND category = ?
		ORDER BY ts
	`, id, category.String())
	if err != nil {
		return nil, fmt.Errorf("item ranks %d/%s: %w", id, category, err)
	}
	return records(rows), nil
}

// LoadRankHistory returns every record of category observed at or after since, oldest first.
func (s *SQLiteStore) LoadRankHistory(ctx context.Context, category feed.Category, since time.Time) ([]feed.RankRecord, error) {
	var rows []rankRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, rank, category, ts FROM item_ranks
		WHERE category = ? AND ts >= ?
		ORDER BY ts, rank
	`, category.String(), since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("rank history %s: %w", category, err)
	}
	return records(rows), nil
}

func records(rows []rankRow) []feed.RankRecord {
	out := make([]feed.RankRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out
}

func (s *SQLiteStore) LoadConfig(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM config WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get config %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLiteStore) StoreConfig(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(value))
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)

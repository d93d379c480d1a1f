package store

// Timestamps are stored as unix nanoseconds so ordering and equality are exact.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id          INTEGER PRIMARY KEY,
    kind        TEXT NOT NULL,
    original    TEXT NOT NULL,
    author      TEXT,
    score       INTEGER,
    descendants INTEGER,
    title       TEXT,
    url         TEXT,
    body        TEXT,
    created_at  INTEGER NOT NULL,
    fetched_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);
CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);

CREATE TABLE IF NOT EXISTS item_ranks (
    id       INTEGER NOT NULL,
    rank     INTEGER NOT NULL,
    category TEXT NOT NULL,
    ts       INTEGER NOT NULL,
    PRIMARY KEY (id, category, ts)
);

CREATE INDEX IF NOT EXISTS idx_item_ranks_category_ts ON item_ranks(category, ts);

CREATE TABLE IF NOT EXISTS item_lists (
    category   TEXT PRIMARY KEY,
    ids        TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

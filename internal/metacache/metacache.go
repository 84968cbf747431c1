// Package metacache is a small sqlite-backed TTL cache for exchange
// metadata. Slices are immutable and live on the filesystem; metadata is
// mutable server-side, so it gets a freshness window instead.
package metacache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL is how long a cached metadata document stays fresh.
const DefaultTTL = time.Hour

const schema = `CREATE TABLE IF NOT EXISTS metadata (
	key        TEXT PRIMARY KEY,
	body       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
)`

// Cache is a key→document store with per-entry fetch times.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// Open creates or opens the cache database under dir.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("metacache: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("metacache: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metacache: schema: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached document for key if it is still fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	var body []byte
	var fetchedAt int64
	err := c.db.QueryRow("SELECT body, fetched_at FROM metadata WHERE key = ?", key).Scan(&body, &fetchedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(time.Unix(fetchedAt, 0)) > c.ttl {
		return nil, false
	}
	return body, true
}

// Put stores or refreshes the document for key.
func (c *Cache) Put(key string, body []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO metadata (key, body, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		key, body, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("metacache: put %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Close() error { return c.db.Close() }

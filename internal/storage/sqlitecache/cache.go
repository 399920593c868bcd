// Package sqlitecache implements a TTL key/value cache for a room's
// caches/ subdirectory, backed by modernc.org/sqlite. It is never the source
// of truth for Tasks/Backlog/Agents (spec §3 Room). No other package in this
// repository imports it: resource reads are served from the Room Store
// directly and are not cached.
package sqlitecache

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	cached_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

// Cache is a TTL key/value cache backed by a SQLite database file.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Set stores value under key with the given TTL.
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	now := time.Now()
	_, err := c.db.Exec(
		`INSERT INTO cache_entries(key, value, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, cached_at=excluded.cached_at, expires_at=excluded.expires_at`,
		key, value, now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano),
	)
	return err
}

// Get returns the cached value for key, or ok=false if absent or expired.
func (c *Cache) Get(key string) (value string, ok bool, err error) {
	var expiresAt string
	row := c.db.QueryRow(`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	expires, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return "", false, err
	}
	if time.Now().After(expires) {
		return "", false, nil
	}
	return value, true, nil
}

// Invalidate removes an entry regardless of TTL.
func (c *Cache) Invalidate(key string) error {
	_, err := c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache) Sweep() (int, error) {
	res, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

package gateway

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache is a persistent geocode cache in SQLite. Entries never expire:
// place names for a query or coordinate rarely change, and Nominatim's usage
// policy asks clients to cache.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("geocode cache open failed: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		json  TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("geocode cache schema error: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_geocode_cache_fetched_at ON geocode_cache(fetched_at)`)
	return &Cache{db: db}, nil
}

// Get decodes the entry for key into out and reports whether it existed.
func (c *Cache) Get(key string, out any) bool {
	var raw string
	if err := c.db.QueryRow(`SELECT json FROM geocode_cache WHERE query = ?`, key).Scan(&raw); err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

// Put stores v under key, replacing any previous entry.
func (c *Cache) Put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`INSERT OR REPLACE INTO geocode_cache(query, json, fetched_at) VALUES(?,?,CURRENT_TIMESTAMP)`, key, string(b))
	return err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	var n int
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM geocode_cache`).Scan(&n)
	return n
}

func (c *Cache) Close() error {
	return c.db.Close()
}

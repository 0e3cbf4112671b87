package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	DefaultTTL = time.Second * 300
)

// MakeKey derives a deterministic, namespace-scoped cache key from a query.
func MakeKey(namespace string, query string) string {
	sum := sha256.Sum256([]byte(query))

	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Cache is a TTL key-value store backed by a local SQLite file so entries
// survive restarts. Storage failures degrade to cache-miss behavior and are
// never surfaced to callers.
type Cache struct {
	db *sql.DB

	now func() time.Time
}

// Open opens (or creates) the cache database at path. A nil now falls back
// to time.Now; tests inject a fake clock through it.
func Open(path string, now func() time.Time) (*Cache, error) {
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Cache{
		db: db,

		now: now,
	}, nil
}

// Get returns the value for key, treating expired or unreadable entries as
// absent. Expired rows are deleted on read.
func (c *Cache) Get(key string) ([]byte, bool) {
	var (
		value     []byte
		expiresAt int64
	)
	if err := c.db.QueryRow(`SELECT value, expires_at FROM entries WHERE key = ?`, key).Scan(&value, &expiresAt); err != nil {
		if err != sql.ErrNoRows {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Could not read cache entry, treating as miss")
		}

		return nil, false
	}

	if c.now().Unix() >= expiresAt {
		c.Delete(key)

		return nil, false
	}

	return value, true
}

// Set writes the value under key with the given TTL, overwriting any
// previous entry. Write failures are logged and dropped.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if _, err := c.db.Exec(`
		INSERT INTO entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, value, c.now().Add(ttl).Unix()); err != nil {
		log.Debug().
			Err(err).
			Str("key", key).
			Msg("Could not write cache entry")
	}
}

func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)

	return ok
}

func (c *Cache) Delete(key string) {
	if _, err := c.db.Exec(`DELETE FROM entries WHERE key = ?`, key); err != nil {
		log.Debug().
			Err(err).
			Str("key", key).
			Msg("Could not delete cache entry")
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}

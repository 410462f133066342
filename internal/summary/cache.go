package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var entriesBucket = []byte("entries")

const cacheOpenTimeout = 5 * time.Second

// Cache is the persisted per-directory summary cache: file name to the
// file's globals plus its inclusive duration. It is best effort. A cache
// file that cannot be opened is replaced, and one that cannot be replaced
// degrades to an in-memory cache.
type Cache struct {
	db      *bolt.DB
	path    string
	logger  zerolog.Logger
	entries map[string]map[string]any
}

// OpenCache opens or creates the cache file at path. It never fails:
// corrupt or unreadable caches are treated as empty.
func OpenCache(path string, logger zerolog.Logger) *Cache {
	c := &Cache{
		path:    path,
		logger:  logger.With().Str("cache", path).Logger(),
		entries: make(map[string]map[string]any),
	}

	db, err := openBolt(path)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Summary cache is unreadable, starting empty")
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn().Err(rmErr).Msg("Failed to remove summary cache, keeping it in memory")
			return c
		}
		if db, err = openBolt(path); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to recreate summary cache, keeping it in memory")
			return c
		}
	}
	c.db = db

	if err := c.load(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load summary cache, starting empty")
		c.entries = make(map[string]map[string]any)
	}
	return c
}

func openBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o660, &bolt.Options{Timeout: cacheOpenTimeout})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (c *Cache) load() error {
	return c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			var entry map[string]any
			if err := json.Unmarshal(v, &entry); err != nil {
				c.logger.Warn().Err(err).Str("file", string(k)).Msg("Dropping undecodable cache entry")
				return nil
			}
			c.entries[string(k)] = entry
			return nil
		})
	})
}

// Entries returns the cached entries keyed by file name.
func (c *Cache) Entries() map[string]map[string]any {
	return c.entries
}

// Has reports whether name is cached.
func (c *Cache) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Put adds entries and persists them in one transaction. Persisting
// failures are logged; the entries stay available in memory.
func (c *Cache) Put(entries map[string]map[string]any) {
	for name, entry := range entries {
		c.entries[name] = entry
	}
	if c.db == nil || len(entries) == 0 {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for name, entry := range entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to encode entry %s: %w", name, err)
			}
			if err := b.Put([]byte(name), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist summary cache")
	}
}

// Close closes the cache file.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Package cache implements the flat TTL-keyed file store. Each artifact
// lives in one file named by the SHA-256 of its source URL; freshness is
// mtime-vs-TTL and the directory contents are authoritative.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config sizes the cache.
type Config struct {
	Dir string
	TTL time.Duration
}

// Stats summarizes the on-disk state for introspection.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// Cache is the file store. Writes are idempotent by construction: the same
// URL always maps to the same key and replacement is an atomic rename, so
// concurrent writers need no locking.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New validates the directory (creating it if missing) and returns a Cache.
func New(cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache TTL must be positive")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache path is not a directory")
	}

	return &Cache{
		dir: cfg.Dir,
		ttl: cfg.TTL,
		now: time.Now,
	}, nil
}

// Key returns the deterministic cache key for a source URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached payload for url if a fresh entry exists.
func (c *Cache) Get(url string) ([]byte, bool) {
	path := filepath.Join(c.dir, Key(url))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	if c.now().Sub(info.ModTime()) > c.ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores the payload under the url's key. The write goes to a temp file
// in the same directory and is promoted with an atomic rename, so readers
// never observe a partial payload.
func (c *Cache) Put(url string, data []byte) error {
	key := Key(url)
	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close cache temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("promote cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for url, if any.
func (c *Cache) Delete(url string) error {
	err := os.Remove(filepath.Join(c.dir, Key(url)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Sweep walks the directory and removes expired entries, returning the
// number removed. Leftover temp files older than the TTL are swept too.
func (c *Cache) Sweep() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache directory: %w", err)
	}
	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats reports entry count and total bytes on disk.
func (c *Cache) Stats() Stats {
	var stats Stats
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			stats.Entries++
			stats.TotalBytes += info.Size()
		}
	}
	return stats
}

// Package cache persists compiled expression programs between runs so
// large templates do not pay for parsing and resolving on every start.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const indexVersion = "1"

// Cache is a directory of content-addressed blobs with a JSON index.
type Cache struct {
	mu      sync.Mutex
	dir     string
	index   *Index
	maxSize int64
	maxAge  time.Duration
	stats   Stats
	logger  *slog.Logger
	dirty   bool
}

// Index tracks all cached entries
type Index struct {
	Version string            `json:"version"`
	Entries map[string]*Entry `json:"entries"`
	Updated time.Time         `json:"updated"`
}

// Entry is one cached blob.
type Entry struct {
	Key         string    `json:"key"`
	Label       string    `json:"label,omitempty"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int       `json:"access_count"`
}

// Stats tracks cache performance metrics
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	TotalSize  int64 `json:"total_size"`
	EntryCount int   `json:"entry_count"`
}

// Config holds cache configuration
type Config struct {
	Dir     string        // Cache directory (default: user cache dir/reflow)
	MaxSize int64         // Maximum total size in bytes; <= 0 means unbounded
	MaxAge  time.Duration // Maximum entry age; <= 0 means entries never expire
	Logger  *slog.Logger
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return Config{
		Dir:     filepath.Join(dir, "reflow"),
		MaxSize: 64 << 20,
		MaxAge:  30 * 24 * time.Hour,
	}
}

// Open opens or creates the cache in config.Dir. A missing or unreadable
// index starts the cache empty.
func Open(config Config) (*Cache, error) {
	if config.Dir == "" {
		def := DefaultConfig()
		config.Dir = def.Dir
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(config.Dir, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	c := &Cache{
		dir:     config.Dir,
		maxSize: config.MaxSize,
		maxAge:  config.MaxAge,
		logger:  config.Logger,
		index:   newIndex(),
	}
	if err := c.loadIndex(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("cache index unreadable, starting empty", "dir", c.dir, "err", err)
		c.index = newIndex()
	}

	c.mu.Lock()
	for key, e := range c.index.Entries {
		if c.expired(e) {
			c.removeLocked(key, e)
		}
	}
	c.mu.Unlock()
	return c, nil
}

func newIndex() *Index {
	return &Index{Version: indexVersion, Entries: make(map[string]*Entry), Updated: time.Now()}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Get returns the blob stored under key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index.Entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.expired(e) {
		c.removeLocked(key, e)
		c.stats.Misses++
		return nil, false
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		c.removeLocked(key, e)
		c.stats.Misses++
		return nil, false
	}
	e.LastAccess = time.Now()
	e.AccessCount++
	c.dirty = true
	c.stats.Hits++
	return data, true
}

// Put stores data under key, evicting least recently used entries when
// the size limit would be exceeded.
func (c *Cache) Put(key, label string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if old, ok := c.index.Entries[key]; ok {
		c.removeLocked(key, old)
	}
	c.evictLocked(size)

	path := filepath.Join(c.dir, "blobs", key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write cache blob: %w", err)
	}

	now := time.Now()
	c.index.Entries[key] = &Entry{
		Key:        key,
		Label:      label,
		Path:       path,
		Size:       size,
		Created:    now,
		LastAccess: now,
	}
	c.index.Updated = now
	c.stats.TotalSize += size
	c.stats.EntryCount = len(c.index.Entries)
	c.dirty = true
	return nil
}

// Delete removes an entry from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(c.dir, "blobs")); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(c.dir, "blobs"), 0o755); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.index = newIndex()
	c.stats = Stats{}
	c.dirty = true
	return c.saveLocked()
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Entries returns a copy of the index entries.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.index.Entries))
	for _, e := range c.index.Entries {
		out = append(out, *e)
	}
	return out
}

// Close writes the index if it changed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// Key hashes inputs into a cache key.
func Key(inputs ...string) string {
	h := sha256.New()
	for _, input := range inputs {
		h.Write([]byte(input))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) expired(e *Entry) bool {
	return c.maxAge > 0 && time.Since(e.Created) > c.maxAge
}

func (c *Cache) removeLocked(key string, e *Entry) {
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("remove cache blob", "path", e.Path, "err", err)
	}
	delete(c.index.Entries, key)
	c.stats.TotalSize -= e.Size
	c.stats.EntryCount = len(c.index.Entries)
	c.index.Updated = time.Now()
	c.dirty = true
}

func (c *Cache) evictLocked(needed int64) {
	if c.maxSize <= 0 {
		return
	}
	for c.stats.TotalSize+needed > c.maxSize && len(c.index.Entries) > 0 {
		var victim *Entry
		for _, e := range c.index.Entries {
			if victim == nil || e.LastAccess.Before(victim.LastAccess) {
				victim = e
			}
		}
		c.removeLocked(victim.Key, victim)
		c.stats.Evictions++
	}
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.dir, "index.json"))
	if err != nil {
		return err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return err
	}
	if index.Version != indexVersion {
		return fmt.Errorf("index version %q", index.Version)
	}
	if index.Entries == nil {
		index.Entries = make(map[string]*Entry)
	}
	c.index = &index
	for _, e := range index.Entries {
		c.stats.TotalSize += e.Size
	}
	c.stats.EntryCount = len(index.Entries)
	return nil
}

func (c *Cache) saveLocked() error {
	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(c.dir, "index.json"), data, 0o644); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	c.dirty = false
	return nil
}

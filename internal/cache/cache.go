// Package cache implements the fingerprint cache: a durable mapping from a
// cheap file fingerprint to a previously computed embedding or match
// decision, so unchanged files are never reprocessed.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// EntryKind discriminates what a cache entry holds.
type EntryKind string

const (
	KindEmbedding EntryKind = "embedding" // a reference face embedding
	KindDecision  EntryKind = "decision"  // a full match decision
	KindNegative  EntryKind = "negative"  // no face found / no match
)

// Entry is one cached result keyed by a file fingerprint.
type Entry struct {
	Kind       EntryKind `json:"kind"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Matched    bool      `json:"matched,omitempty"`
	Identity   string    `json:"identity,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Cache holds fingerprint entries for one detection-model namespace. Two
// models never share a namespace because their embeddings and detections are
// not comparable.
//
// Workers read concurrently; writes happen only from the orchestrator's
// aggregation step.
type Cache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	dirty   int
	logger  *slog.Logger
}

// New creates a cache stored under dir, namespaced by the detection model.
func New(dir, model string, logger *slog.Logger) *Cache {
	return &Cache{
		path:    filepath.Join(dir, fmt.Sprintf("fingerprints_%s.json", model)),
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Key derives a fingerprint for a file from its path, size and modification
// time. This identifies "the same file, unchanged" cheaply; it is not
// content identity. Falls back to a path-only key when the file cannot be
// stat'd.
func Key(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		sum := md5.Sum([]byte(path))
		return hex.EncodeToString(sum[:])
	}
	sum := md5.Sum(fmt.Appendf(nil, "%s_%d_%d", path, info.Size(), info.ModTime().UnixNano()))
	return hex.EncodeToString(sum[:])
}

// Load reads the persisted blob. A missing, truncated or corrupt file
// degrades to an empty cache; it never fails the run.
func (c *Cache) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	c.dirty = 0

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read fingerprint cache, starting empty", "path", c.path, "error", err)
		}
		return
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("fingerprint cache is corrupt, starting empty", "path", c.path, "error", err)
		return
	}
	c.entries = entries
}

// Lookup returns the entry for a fingerprint key, if present.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Store records an entry. Last writer wins on key collision.
func (c *Cache) Store(key string, entry Entry) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	c.dirty++
}

// Persist writes the whole mapping to disk when there are unsaved entries.
// Writes go through a temp file so a crash never truncates the previous
// blob.
func (c *Cache) Persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dirty == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write fingerprint cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace fingerprint cache: %w", err)
	}

	c.dirty = 0
	return nil
}

// Dirty returns the number of entries stored since the last persist.
func (c *Cache) Dirty() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Path returns the location of the persisted blob.
func (c *Cache) Path() string {
	return c.path
}

// Clear drops all entries and removes the persisted blob.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	c.dirty = 0
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove fingerprint cache: %w", err)
	}
	return nil
}

// Package cache implements the offline decision cache: a small,
// allow-only TTL store that lets the gateway answer a repeat question
// without round-tripping the control plane. A deny is never cached — a
// stale allow surviving past its real deny is the wrong failure mode, so
// denies simply aren't stored.
//
// The on-disk persistence is a genuine temp-file-plus-rename swap rather
// than a direct write, so a concurrent reader never observes a partial
// file.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/safeclaw/core/pkg/envelope"
)

// entry is the on-disk and in-memory representation of one cached
// decision. Outcome is always "allow" — see Put.
type entry struct {
	Outcome   envelope.Outcome `json:"outcome"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// Cache is a process-local, optionally disk-backed map from (actionType,
// resource) to a cached allow outcome. Safe for concurrent use.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]entry
}

// Open loads path's on-disk JSON map, if any, pruning expired entries as
// it goes. A missing file is not an error; the cache starts empty.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[string]entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("cache: read: %w", err)
	}

	var onDisk map[string]entry
	if err := json.Unmarshal(data, &onDisk); err != nil {
		// A corrupt cache file degrades to an empty cache rather than a
		// startup failure; it is only an optimization layer.
		return c, nil
	}

	now := time.Now()
	for k, v := range onDisk {
		if v.ExpiresAt.After(now) {
			c.entries[k] = v
		}
	}
	return c, nil
}

func key(actionType, resource string) string {
	return actionType + "\x00" + resource
}

// Put records an allow outcome for (actionType, resource) with the given
// TTL, persisting the updated map to disk. Anything other than allow is a
// silent no-op: only allow decisions are ever cached for offline use.
func (c *Cache) Put(actionType, resource string, outcome envelope.Outcome, ttlSeconds int) error {
	if outcome != envelope.OutcomeAllow {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(actionType, resource)] = entry{
		Outcome:   envelope.OutcomeAllow,
		ExpiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return c.persistLocked()
}

// Get returns the cached outcome for (actionType, resource), if any and
// unexpired. Expired entries are pruned lazily and removed from the
// in-memory map (but the prune is not itself persisted until the next
// Put/Clear, to avoid a disk write on every read).
func (c *Cache) Get(actionType, resource string) (envelope.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(actionType, resource)
	e, ok := c.entries[k]
	if !ok {
		return envelope.OutcomeUnknown, false
	}
	if !e.ExpiresAt.After(time.Now()) {
		delete(c.entries, k)
		return envelope.OutcomeUnknown, false
	}
	return e.Outcome, true
}

// Clear empties the cache, both in memory and on disk.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return c.persistLocked()
}

// persistLocked writes the current map to disk via a temp-file-plus-rename
// atomic swap with owner-only permissions. Callers must hold c.mu.
func (c *Cache) persistLocked() error {
	if c.path == "" {
		return nil
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

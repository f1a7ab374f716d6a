package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"poolscope/internal/model"
)

// Snapshot is the serialized form of the cache written across restarts.
type Snapshot struct {
	Entries   map[string]Entry `json:"entries"`
	Stats     Stats            `json:"stats"`
	Timestamp time.Time        `json:"timestamp"`
}

// SnapshotStore persists cache snapshots. Load returns (nil, nil) when no
// snapshot exists yet.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

const persistTimeout = 10 * time.Second

// persist writes all unexpired, non-synthetic entries to the snapshot store.
// Failures are warnings; the cache keeps operating in memory.
func (c *PoolCache) persist() {
	if c.store == nil {
		return
	}

	snap := c.snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("cache snapshot save failed", zap.Error(err))
	}
}

func (c *PoolCache) snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	snap := &Snapshot{
		Entries: make(map[string]Entry),
		Stats: Stats{
			Hits:              c.hits,
			Misses:            c.misses,
			Evictions:         c.evicted,
			Size:              c.lru.Len(),
			ApproxMemoryBytes: c.memBytes,
		},
		Timestamp: now,
	}
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok || entry.Expired(now) || entry.Source == model.SourceSynthetic {
			continue
		}
		snap.Entries[key] = *entry
	}
	return snap
}

// reload restores entries from the snapshot store, discarding anything that
// expired while the process was down.
func (c *PoolCache) reload() {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("cache snapshot load failed", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}

	now := time.Now()
	restored := 0

	c.mu.Lock()
	for key, entry := range snap.Entries {
		if entry.Expired(now) || entry.Source == model.SourceSynthetic {
			continue
		}
		e := entry
		c.put(key, &e)
		restored++
	}
	c.mu.Unlock()

	if restored > 0 {
		c.logger.Info("cache snapshot restored",
			zap.Int("entries", restored),
			zap.Time("taken_at", snap.Timestamp),
		)
	}
}

// FileStore persists snapshots as a single JSON file on local disk, written
// atomically via a temp file rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

func (s *FileStore) Save(_ context.Context, snap *Snapshot) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

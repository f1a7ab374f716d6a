// Package cache provides the TTL-aware pool cache that backs the resolver. A
// fixed-capacity LRU store bounds memory; a background sweep evicts expired
// entries and snapshots the survivors to an optional persistence store.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

// Entry wraps a cached record with its provenance and expiry bookkeeping.
type Entry struct {
	Record   model.PoolRecord `json:"record"`
	Source   model.Source     `json:"source"`
	StoredAt time.Time        `json:"stored_at"`
	TTL      time.Duration    `json:"ttl"`

	bytes int
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	Evictions         uint64  `json:"evictions"`
	Size              int     `json:"size"`
	HitRate           float64 `json:"hit_rate"`
	ApproxMemoryBytes int64   `json:"approx_memory_bytes"`
}

// Config controls cache capacity, expiry and persistence.
type Config struct {
	MaxSize         int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	Store           SnapshotStore
}

// PoolCache is a TTL wrapper over an LRU store. A single instance is shared
// per process; all mutations are serialized by one mutex.
type PoolCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, *Entry]
	hits     uint64
	misses   uint64
	evicted  uint64
	memBytes int64

	defaultTTL    time.Duration
	sweepInterval time.Duration
	store         SnapshotStore
	logger        *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a PoolCache and, when a snapshot store is configured, reloads
// unexpired entries from it. Persistence failures are logged and ignored.
func New(cfg Config, logger *zap.Logger) (*PoolCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	c := &PoolCache{
		defaultTTL:    cfg.DefaultTTL,
		sweepInterval: cfg.CleanupInterval,
		store:         cfg.Store,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	store, err := lru.NewWithEvict[string, *Entry](cfg.MaxSize, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = store

	c.reload()

	go c.sweepLoop()

	return c, nil
}

// onEvict runs under the cache mutex for every removal, LRU-driven or
// explicit. It only maintains the memory estimate; eviction counting happens
// at the call sites, which know why the entry left.
func (c *PoolCache) onEvict(key string, e *Entry) {
	if e != nil {
		c.memBytes -= int64(e.bytes)
	}
}

// Get returns the cached record for key, or nil on miss. Reading an expired
// entry removes it, counting both a miss and an eviction.
func (c *PoolCache) Get(key string) *model.PoolRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil
	}
	if entry.Expired(time.Now()) {
		c.lru.Remove(key)
		c.misses++
		c.evicted++
		return nil
	}

	c.hits++
	record := entry.Record
	return &record
}

// Peek returns the cached record without touching recency or statistics.
// Expired entries read as absent but are left for the sweep.
func (c *PoolCache) Peek(key string) *model.PoolRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(key)
	if !ok || entry.Expired(time.Now()) {
		return nil
	}
	record := entry.Record
	return &record
}

// Has reports whether key is present and unexpired, without touching recency
// or statistics.
func (c *PoolCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Peek(key)
	return ok && !entry.Expired(time.Now())
}

// Set stores the record under all of its keys with the default TTL.
func (c *PoolCache) Set(record *model.PoolRecord, source model.Source) {
	c.SetWithTTL(record, source, c.defaultTTL)
}

// SetWithTTL stores the record under all of its keys with an entry-specific
// TTL. Synthetic records are never cached.
func (c *PoolCache) SetWithTTL(record *model.PoolRecord, source model.Source, ttl time.Duration) {
	if record == nil || source == model.SourceSynthetic {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range RecordKeys(record) {
		c.put(key, &Entry{
			Record:   *record,
			Source:   source,
			StoredAt: time.Now(),
			TTL:      ttl,
		})
	}
}

// put inserts one entry, accounting for LRU pressure. Caller holds the mutex.
func (c *PoolCache) put(key string, entry *Entry) {
	entry.bytes = approxEntryBytes(key, entry)
	c.memBytes += int64(entry.bytes)
	if evicted := c.lru.Add(key, entry); evicted {
		c.evicted++
	}
}

// Delete removes key. Missing keys are a no-op.
func (c *PoolCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Purge drops every entry without touching hit/miss counters.
func (c *PoolCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns current counters.
func (c *PoolCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:              c.hits,
		Misses:            c.misses,
		Evictions:         c.evicted,
		Size:              c.lru.Len(),
		ApproxMemoryBytes: c.memBytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Close stops the sweep loop and writes a final snapshot. Safe to call more
// than once.
func (c *PoolCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.persist()
	})
}

func (c *PoolCache) sweepLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			removed := c.Sweep()
			if removed > 0 {
				c.logger.Debug("cache sweep", zap.Int("expired", removed))
			}
			c.persist()
		}
	}
}

// Sweep scans all entries and removes the expired ones, bounding memory even
// when nothing is read. Returns the number removed.
func (c *PoolCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if entry.Expired(now) {
			c.lru.Remove(key)
			c.evicted++
			removed++
		}
	}
	return removed
}

// approxEntryBytes estimates the resident size of one entry: key, fixed
// struct overhead, and the record's string payloads.
func approxEntryBytes(key string, e *Entry) int {
	const structOverhead = 256
	n := len(key) + structOverhead
	r := &e.Record
	for _, s := range []string{
		r.Address,
		r.TokenA.Address, r.TokenA.Symbol, r.TokenA.Name,
		r.TokenB.Address, r.TokenB.Symbol, r.TokenB.Name,
		r.SqrtPriceX96, r.Liquidity,
		r.VolumeUSD, r.TotalValueLockedUSD, r.TotalValueLockedA, r.TotalValueLockedB,
		r.FeesUSD, r.FeeGrowthGlobal0X128, r.FeeGrowthGlobal1X128,
	} {
		n += len(s)
	}
	return n
}

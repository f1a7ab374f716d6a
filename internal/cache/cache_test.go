package cache

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poolscope/internal/model"
)

func testRecord(addr string, chainID uint64) *model.PoolRecord {
	return &model.PoolRecord{
		Address: addr,
		ChainID: chainID,
		TokenA:  model.Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "AAA"},
		TokenB:  model.Token{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Symbol: "BBB"},
		FeeTier: model.FeeTierMedium,
	}
}

func newTestCache(t *testing.T, cfg Config) *PoolCache {
	t.Helper()
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	c, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSetThenGet(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	rec := testRecord("0x1111111111111111111111111111111111111111", 1)
	c.Set(rec, model.SourceIndexed)

	got := c.Get(AddressKey(1, rec.Address))
	require.NotNil(t, got)
	require.Equal(t, rec.Address, got.Address)

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(0), stats.Misses)
	require.Positive(t, stats.ApproxMemoryBytes)
}

func TestPairKeyCanonicalization(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	rec := testRecord("0x1111111111111111111111111111111111111111", 1)
	c.Set(rec, model.SourceIndexed)

	ab := PairKey(1, rec.TokenA.Address, rec.TokenB.Address, rec.FeeTier)
	ba := PairKey(1, rec.TokenB.Address, rec.TokenA.Address, rec.FeeTier)
	require.Equal(t, ab, ba)

	require.NotNil(t, c.Get(ab))
	require.NotNil(t, c.Get(ba))
}

func TestExpiredReadCountsMissAndEviction(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	rec := testRecord("0x1111111111111111111111111111111111111111", 1)
	c.SetWithTTL(rec, model.SourceIndexed, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	require.Nil(t, c.Get(AddressKey(1, rec.Address)))

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, uint64(1), stats.Evictions)
}

func TestHasRespectsExpiry(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	rec := testRecord("0x1111111111111111111111111111111111111111", 1)
	c.SetWithTTL(rec, model.SourceChain, 10*time.Millisecond)

	key := AddressKey(1, rec.Address)
	require.True(t, c.Has(key))

	time.Sleep(30 * time.Millisecond)
	require.False(t, c.Has(key))
}

func TestLRUEviction(t *testing.T) {
	// Records without token data occupy exactly one key each.
	c := newTestCache(t, Config{MaxSize: 3, DefaultTTL: time.Minute})

	for i := 0; i < 3; i++ {
		addr := "0x00000000000000000000000000000000000000a" + strconv.Itoa(i)
		c.Set(&model.PoolRecord{Address: addr, ChainID: 1}, model.SourceIndexed)
	}

	// Touch the oldest so it is no longer the LRU victim.
	require.NotNil(t, c.Get(AddressKey(1, "0x00000000000000000000000000000000000000a0")))

	c.Set(&model.PoolRecord{Address: "0x00000000000000000000000000000000000000a9", ChainID: 1}, model.SourceIndexed)

	require.True(t, c.Has(AddressKey(1, "0x00000000000000000000000000000000000000a0")))
	require.False(t, c.Has(AddressKey(1, "0x00000000000000000000000000000000000000a1")))

	stats := c.Stats()
	require.Equal(t, uint64(1), stats.Evictions)
	require.Equal(t, 3, stats.Size)
}

func TestSyntheticNeverCached(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	rec := testRecord("0x1111111111111111111111111111111111111111", 137)
	c.Set(rec, model.SourceSynthetic)

	require.False(t, c.Has(AddressKey(137, rec.Address)))
	require.False(t, c.Has(PairKey(137, rec.TokenA.Address, rec.TokenB.Address, rec.FeeTier)))
}

func TestSweepRemovesExpired(t *testing.T) {
	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute})

	c.SetWithTTL(testRecord("0x1111111111111111111111111111111111111111", 1), model.SourceIndexed, 10*time.Millisecond)

	survivor := testRecord("0x2222222222222222222222222222222222222222", 1)
	survivor.TokenA.Address = "0xcccccccccccccccccccccccccccccccccccccccc"
	survivor.TokenB.Address = "0xdddddddddddddddddddddddddddddddddddddddd"
	c.Set(survivor, model.SourceIndexed)

	time.Sleep(30 * time.Millisecond)

	removed := c.Sweep()
	require.Equal(t, 2, removed) // address key + pair key

	stats := c.Stats()
	require.Equal(t, 2, stats.Size)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewFileStore(path)

	first := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute, Store: store})
	first.Set(testRecord("0x1111111111111111111111111111111111111111", 1), model.SourceIndexed)
	first.SetWithTTL(testRecord("0x2222222222222222222222222222222222222222", 1), model.SourceIndexed, time.Millisecond)
	first.Close()

	time.Sleep(5 * time.Millisecond)

	second := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute, Store: store})
	require.True(t, second.Has(AddressKey(1, "0x1111111111111111111111111111111111111111")))
	// Expired while the process was "down".
	require.False(t, second.Has(AddressKey(1, "0x2222222222222222222222222222222222222222")))
}

func TestPersistenceFailureNonFatal(t *testing.T) {
	// A directory at the snapshot path makes both load and save fail.
	dir := t.TempDir()
	store := NewFileStore(dir)

	c := newTestCache(t, Config{MaxSize: 10, DefaultTTL: time.Minute, Store: store})
	rec := testRecord("0x1111111111111111111111111111111111111111", 1)
	c.Set(rec, model.SourceIndexed)

	require.NotNil(t, c.Get(AddressKey(1, rec.Address)))
}

// Package resolver orchestrates pool lookups across the cache, the indexed
// ledger service, the direct-chain fallback and a synthetic placeholder of
// last resort. Every operation returns a discriminated Result carrying
// provenance and latency; failures never surface as panics or bare errors.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"poolscope/internal/cache"
	"poolscope/internal/metrics"
	"poolscope/internal/model"
	"poolscope/internal/ratelimit"
	"poolscope/internal/retrier"
)

// IndexedSource is the upstream indexed ledger service.
type IndexedSource interface {
	GetPool(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error)
	GetPoolByTokens(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error)
	GetPools(ctx context.Context, chainID uint64, filter model.PoolFilter) ([]*model.PoolRecord, error)
	SearchPools(ctx context.Context, chainID uint64, text string, limit int) ([]*model.PoolRecord, error)
}

// ChainSource reads pool state directly from chain RPC. It is strictly
// best-effort and consulted only after the indexed service exhausts retries.
type ChainSource interface {
	GetPoolOnChain(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error)
	ReadPool(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error)
}

// Config tunes resolver behavior.
type Config struct {
	// SearchLimit bounds the top-N set symbol searches run over.
	SearchLimit int
	// BatchConcurrency bounds parallel lookups in BatchGetPools.
	BatchConcurrency int
}

// Resolver owns the cache and fallback chain. Construct with New and share
// one instance per process.
type Resolver struct {
	cfg     Config
	cache   *cache.PoolCache
	indexed IndexedSource
	chain   ChainSource
	limiter *ratelimit.Limiter
	retry   *retrier.Retrier
	metrics *metrics.Metrics
	logger  *zap.Logger

	flight singleflight.Group
}

// New wires a Resolver. indexed, cache, limiter and retry are required;
// chainSrc and m may be nil (no chain fallback, no instrumentation).
func New(cfg Config, poolCache *cache.PoolCache, indexed IndexedSource, chainSrc ChainSource, limiter *ratelimit.Limiter, retry *retrier.Retrier, m *metrics.Metrics, logger *zap.Logger) (*Resolver, error) {
	if poolCache == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	if indexed == nil {
		return nil, fmt.Errorf("indexed source is nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is nil")
	}
	if retry == nil {
		return nil, fmt.Errorf("retrier is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 50
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	return &Resolver{
		cfg:     cfg,
		cache:   poolCache,
		indexed: indexed,
		chain:   chainSrc,
		limiter: limiter,
		retry:   retry,
		metrics: m,
		logger:  logger,
	}, nil
}

// Cache exposes the resolver-owned cache for stats reporting. The resolver
// is the single cache owner; callers must not layer another TTL cache on top.
func (r *Resolver) Cache() *cache.PoolCache {
	return r.cache
}

// waitAdmission blocks on the rate limiter and records the queue time.
func (r *Resolver) waitAdmission(ctx context.Context) error {
	started := time.Now()
	err := r.limiter.Wait(ctx)
	r.metrics.ObserveRateLimitWait(time.Since(started))
	return err
}

// countRetries wraps an upstream fetch so every attempt past the first
// counts as a retry.
func countRetries[T any](m *metrics.Metrics, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	attempt := 0
	return func(ctx context.Context) (T, error) {
		attempt++
		if attempt > 1 {
			m.ObserveRetry()
		}
		return fn(ctx)
	}
}

// fetched pairs a record with the source that produced it, for sharing
// through the single-flight group.
type fetched struct {
	record *model.PoolRecord
	source model.Source
}

// GetPool resolves one pool by contract address.
func (r *Resolver) GetPool(ctx context.Context, chainID uint64, address string) model.Result[*model.PoolRecord] {
	started := time.Now()

	key := cache.AddressKey(chainID, address)
	if record := r.cache.Get(key); record != nil {
		return r.finish(model.Ok(record, model.SourceCache, started))
	}

	f, err := r.resolveMiss(ctx, key,
		func(ctx context.Context) (*model.PoolRecord, error) {
			return r.indexed.GetPool(ctx, chainID, address)
		},
		func(ctx context.Context) (*model.PoolRecord, error) {
			if r.chain == nil {
				return nil, model.ErrUnavailable
			}
			return r.chain.ReadPool(ctx, chainID, address)
		},
		func() *model.PoolRecord {
			return syntheticByAddress(chainID, address)
		},
	)
	if err != nil {
		return r.finish(model.Fail[*model.PoolRecord](err, model.SourceIndexed, started))
	}
	return r.finish(model.Ok(f.record, f.source, started))
}

// GetPoolByTokens resolves a pool by its (tokenA, tokenB, fee) tuple. Token
// order is canonicalized before the cache key and upstream query are built.
func (r *Resolver) GetPoolByTokens(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) model.Result[*model.PoolRecord] {
	started := time.Now()

	key := cache.PairKey(chainID, tokenA, tokenB, fee)
	if record := r.cache.Get(key); record != nil {
		return r.finish(model.Ok(record, model.SourceCache, started))
	}

	f, err := r.resolveMiss(ctx, key,
		func(ctx context.Context) (*model.PoolRecord, error) {
			return r.indexed.GetPoolByTokens(ctx, chainID, tokenA, tokenB, fee)
		},
		func(ctx context.Context) (*model.PoolRecord, error) {
			if r.chain == nil {
				return nil, model.ErrUnavailable
			}
			return r.chain.GetPoolOnChain(ctx, chainID, tokenA, tokenB, fee)
		},
		func() *model.PoolRecord {
			return syntheticByTokens(chainID, tokenA, tokenB, fee)
		},
	)
	if err != nil {
		return r.finish(model.Fail[*model.PoolRecord](err, model.SourceIndexed, started))
	}
	return r.finish(model.Ok(f.record, f.source, started))
}

// resolveMiss runs the miss path under single-flight so concurrent callers
// for the same key share one upstream fetch. The indexed query is
// rate-limited and retried; the chain fallback runs once; the synthetic
// placeholder is the last resort and is never cached.
//
// Policy: an affirmative NotFound from either real source terminates the
// lookup as NotFound. Only when both sources are unreachable does the
// resolver synthesize a placeholder.
func (r *Resolver) resolveMiss(
	ctx context.Context,
	key string,
	fromIndexed func(context.Context) (*model.PoolRecord, error),
	fromChain func(context.Context) (*model.PoolRecord, error),
	synthesize func() *model.PoolRecord,
) (fetched, error) {
	v, err, _ := r.flight.Do(key, func() (any, error) {
		if record := r.cache.Peek(key); record != nil {
			return fetched{record: record, source: model.SourceCache}, nil
		}

		if err := r.waitAdmission(ctx); err != nil {
			return fetched{}, err
		}

		record, indexedErr := retrier.DoWithData(ctx, r.retry, countRetries(r.metrics, func(ctx context.Context) (*model.PoolRecord, error) {
			rec, err := fromIndexed(ctx)
			if model.IsNotFound(err) {
				return nil, retrier.Permanent(err)
			}
			return rec, err
		}))
		if indexedErr == nil {
			r.cache.Set(record, model.SourceIndexed)
			return fetched{record: record, source: model.SourceIndexed}, nil
		}
		if model.IsNotFound(indexedErr) {
			return fetched{}, indexedErr
		}
		r.logger.Warn("indexed service exhausted, trying chain fallback",
			zap.String("key", key), zap.Error(indexedErr))

		record, chainErr := fromChain(ctx)
		if chainErr == nil {
			r.cache.Set(record, model.SourceChain)
			return fetched{record: record, source: model.SourceChain}, nil
		}
		if model.IsNotFound(chainErr) {
			return fetched{}, chainErr
		}
		r.logger.Warn("chain fallback failed, synthesizing placeholder",
			zap.String("key", key), zap.Error(chainErr))

		if placeholder := synthesize(); placeholder != nil {
			return fetched{record: placeholder, source: model.SourceSynthetic}, nil
		}
		return fetched{}, fmt.Errorf("%w: %v", model.ErrUnavailable, indexedErr)
	})
	if err != nil {
		return fetched{}, err
	}
	return v.(fetched), nil
}

// GetPools lists pools on a chain, applying the filter. Every returned pool
// is individually cached. Listing has no chain fallback: only the indexed
// service can enumerate.
func (r *Resolver) GetPools(ctx context.Context, chainID uint64, filter model.PoolFilter) model.Result[[]*model.PoolRecord] {
	started := time.Now()

	if err := r.waitAdmission(ctx); err != nil {
		return r.finishList(model.Fail[[]*model.PoolRecord](err, model.SourceIndexed, started))
	}

	records, err := retrier.DoWithData(ctx, r.retry, countRetries(r.metrics, func(ctx context.Context) ([]*model.PoolRecord, error) {
		return r.indexed.GetPools(ctx, chainID, filter)
	}))
	if err != nil {
		return r.finishList(model.Fail[[]*model.PoolRecord](err, model.SourceIndexed, started))
	}

	filtered := records[:0]
	for _, record := range records {
		if filter.Matches(record) {
			r.cache.Set(record, model.SourceIndexed)
			filtered = append(filtered, record)
		}
	}
	sortRecords(filtered, filter.OrderBy, filter.OrderDirection)

	return r.finishList(model.Ok(filtered, model.SourceIndexed, started))
}

// SearchOptions tunes SearchPools.
type SearchOptions struct {
	Limit int
}

// SearchPools resolves a free-form query: a well-formed address becomes a
// token-filtered listing; anything else is a best-effort substring match
// against token symbols over a bounded TVL-ordered top-N set.
func (r *Resolver) SearchPools(ctx context.Context, query string, chainID uint64, opts SearchOptions) model.Result[[]*model.PoolRecord] {
	started := time.Now()

	limit := opts.Limit
	if limit <= 0 || limit > r.cfg.SearchLimit {
		limit = r.cfg.SearchLimit
	}

	if model.IsAddress(query) {
		result := r.GetPools(ctx, chainID, model.PoolFilter{Token: query, First: limit})
		return result
	}

	if err := r.waitAdmission(ctx); err != nil {
		return r.finishList(model.Fail[[]*model.PoolRecord](err, model.SourceIndexed, started))
	}

	records, err := retrier.DoWithData(ctx, r.retry, countRetries(r.metrics, func(ctx context.Context) ([]*model.PoolRecord, error) {
		return r.indexed.SearchPools(ctx, chainID, query, limit)
	}))
	if err != nil {
		return r.finishList(model.Fail[[]*model.PoolRecord](err, model.SourceIndexed, started))
	}

	for _, record := range records {
		r.cache.Set(record, model.SourceIndexed)
	}

	return r.finishList(model.Ok(records, model.SourceIndexed, started))
}

func (r *Resolver) finish(result model.Result[*model.PoolRecord]) model.Result[*model.PoolRecord] {
	r.metrics.ObserveLookup(string(result.Source), result.Success, time.Duration(result.LatencyMS)*time.Millisecond)
	return result
}

func (r *Resolver) finishList(result model.Result[[]*model.PoolRecord]) model.Result[[]*model.PoolRecord] {
	r.metrics.ObserveLookup(string(result.Source), result.Success, time.Duration(result.LatencyMS)*time.Millisecond)
	return result
}

func sortRecords(records []*model.PoolRecord, orderBy, direction string) {
	if len(records) < 2 {
		return
	}
	less := func(a, b *model.PoolRecord) bool {
		switch orderBy {
		case model.OrderByVolume:
			return model.CompareUSD(a.VolumeUSD, b.VolumeUSD) < 0
		case model.OrderByFees:
			return model.CompareUSD(a.FeesUSD, b.FeesUSD) < 0
		case model.OrderByCreatedAt:
			return a.CreatedAtTimestamp < b.CreatedAtTimestamp
		default:
			return model.CompareUSD(a.TotalValueLockedUSD, b.TotalValueLockedUSD) < 0
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if direction == "asc" {
			return less(records[i], records[j])
		}
		return less(records[j], records[i])
	})
}

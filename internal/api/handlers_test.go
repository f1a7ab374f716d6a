package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poolscope/internal/cache"
	"poolscope/internal/model"
	"poolscope/internal/ratelimit"
	"poolscope/internal/resolver"
	"poolscope/internal/retrier"
)

type fakeIndexed struct {
	getPool         func(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error)
	getPoolByTokens func(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error)
	getPools        func(ctx context.Context, chainID uint64, filter model.PoolFilter) ([]*model.PoolRecord, error)
	searchPools     func(ctx context.Context, chainID uint64, text string, limit int) ([]*model.PoolRecord, error)
}

func (f *fakeIndexed) GetPool(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
	return f.getPool(ctx, chainID, address)
}

func (f *fakeIndexed) GetPoolByTokens(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error) {
	return f.getPoolByTokens(ctx, chainID, tokenA, tokenB, fee)
}

func (f *fakeIndexed) GetPools(ctx context.Context, chainID uint64, filter model.PoolFilter) ([]*model.PoolRecord, error) {
	return f.getPools(ctx, chainID, filter)
}

func (f *fakeIndexed) SearchPools(ctx context.Context, chainID uint64, text string, limit int) ([]*model.PoolRecord, error) {
	return f.searchPools(ctx, chainID, text, limit)
}

const poolAddr = "0xaaa0000000000000000000000000000000000001"

func newTestServer(t *testing.T, indexed *fakeIndexed) *Server {
	t.Helper()

	poolCache, err := cache.New(cache.Config{
		MaxSize:         100,
		DefaultTTL:      time.Minute,
		CleanupInterval: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(poolCache.Close)

	limiter, err := ratelimit.New(1000, time.Second)
	require.NoError(t, err)

	res, err := resolver.New(resolver.Config{}, poolCache, indexed, nil, limiter, retrier.New(0, time.Millisecond), nil, zap.NewNop())
	require.NoError(t, err)

	return NewServer(res, nil, zap.NewNop())
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestGetPoolSuccess(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(_ context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
			return &model.PoolRecord{Address: address, ChainID: chainID, FeeTier: 3000}, nil
		},
	}
	s := newTestServer(t, indexed)

	rec := doRequest(t, s, http.MethodGet, "/pools/"+poolAddr, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.Result[*model.PoolRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, model.SourceIndexed, result.Source)
	require.Equal(t, poolAddr, result.Data.Address)
}

func TestGetPoolMalformedAddress(t *testing.T) {
	s := newTestServer(t, &fakeIndexed{})

	rec := doRequest(t, s, http.MethodGet, "/pools/not-an-address", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPoolNotFound(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(context.Context, uint64, string) (*model.PoolRecord, error) {
			return nil, model.ErrNotFound
		},
	}
	s := newTestServer(t, indexed)

	rec := doRequest(t, s, http.MethodGet, "/pools/"+poolAddr, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var result model.Result[*model.PoolRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Success)
	require.Contains(t, result.Err, "not found")
}

func TestGetPoolBadChainParam(t *testing.T) {
	s := newTestServer(t, &fakeIndexed{})

	rec := doRequest(t, s, http.MethodGet, "/pools/"+poolAddr+"?chain=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPoolByTokensRejectsUnknownFee(t *testing.T) {
	s := newTestServer(t, &fakeIndexed{})

	tokenA := "0x1000000000000000000000000000000000000001"
	tokenB := "0x2000000000000000000000000000000000000002"
	rec := doRequest(t, s, http.MethodGet, "/pools/by-tokens?tokenA="+tokenA+"&tokenB="+tokenB+"&fee=123", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPoolsForwardsFilter(t *testing.T) {
	var seen model.PoolFilter
	indexed := &fakeIndexed{
		getPools: func(_ context.Context, _ uint64, filter model.PoolFilter) ([]*model.PoolRecord, error) {
			seen = filter
			return []*model.PoolRecord{{Address: poolAddr, ChainID: 1, FeeTier: 500, TotalValueLockedUSD: "250000"}}, nil
		},
	}
	s := newTestServer(t, indexed)

	rec := doRequest(t, s, http.MethodGet, "/pools?fee=500&minTvlUsd=1000&first=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint32(500), seen.FeeTier)
	require.Equal(t, "1000", seen.MinTVLUSD)
	require.Equal(t, 5, seen.First)
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t, &fakeIndexed{})

	rec := doRequest(t, s, http.MethodGet, "/pools/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchPartialFailureStillOK(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(_ context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
			return &model.PoolRecord{Address: address, ChainID: chainID, FeeTier: 3000}, nil
		},
	}
	s := newTestServer(t, indexed)

	body := `{"requests":[{"chain_id":1,"address":"` + poolAddr + `"},{"chain_id":1,"address":"garbage"}]}`
	rec := doRequest(t, s, http.MethodPost, "/pools/batch", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.Result[[]*model.PoolRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Len(t, result.Data, 1)
	require.Contains(t, result.Err, "malformed address")
}

func TestStatsEndpoint(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(_ context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
			return &model.PoolRecord{Address: address, ChainID: chainID, FeeTier: 3000}, nil
		},
	}
	s := newTestServer(t, indexed)

	doRequest(t, s, http.MethodGet, "/pools/"+poolAddr, "")
	doRequest(t, s, http.MethodGet, "/pools/"+poolAddr, "")

	rec := doRequest(t, s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}
package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"poolscope/internal/model"
)

func TestBatchPartialFailure(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(_ context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
			return record(address, chainID), nil
		},
	}
	r := newTestResolver(t, indexed, nil)

	result := r.BatchGetPools(context.Background(), []BatchRequest{
		{ChainID: 1, Address: poolAddr},
		{ChainID: 1, Address: "not-an-address"},
	})

	require.True(t, result.Success)
	require.Len(t, result.Data, 1)
	require.NotEmpty(t, result.Err)
	require.Contains(t, result.Err, "malformed address")
}

func TestBatchAllFail(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(context.Context, uint64, string) (*model.PoolRecord, error) {
			return nil, model.ErrNotFound
		},
	}
	r := newTestResolver(t, indexed, nil)

	result := r.BatchGetPools(context.Background(), []BatchRequest{
		{ChainID: 1, Address: poolAddr},
		{ChainID: 1, Address: "0xaaa0000000000000000000000000000000000002"},
	})

	require.False(t, result.Success)
	require.Empty(t, result.Data)
	require.NotEmpty(t, result.Err)
}

func TestBatchMixedForms(t *testing.T) {
	indexed := &fakeIndexed{
		getPool: func(_ context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
			return record(address, chainID), nil
		},
		getPoolByTokens: func(_ context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error) {
			return record(poolAddr, chainID), nil
		},
	}
	r := newTestResolver(t, indexed, nil)

	result := r.BatchGetPools(context.Background(), []BatchRequest{
		{ChainID: 1, Address: poolAddr},
		{ChainID: 137, TokenA: tokenX, TokenB: tokenY, FeeTier: model.FeeTierLow},
	})

	require.True(t, result.Success)
	require.Len(t, result.Data, 2)
	require.Empty(t, result.Err)
}

func TestBatchEmpty(t *testing.T) {
	r := newTestResolver(t, &fakeIndexed{}, nil)

	result := r.BatchGetPools(context.Background(), nil)
	require.True(t, result.Success)
	require.Empty(t, result.Data)
}

func TestBatchRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     BatchRequest
		wantErr bool
	}{
		{"address", BatchRequest{ChainID: 1, Address: poolAddr}, false},
		{"pair", BatchRequest{ChainID: 1, TokenA: tokenX, TokenB: tokenY, FeeTier: model.FeeTierMedium}, false},
		{"bad address", BatchRequest{ChainID: 1, Address: "0x123"}, true},
		{"missing pair", BatchRequest{ChainID: 1, TokenA: tokenX}, true},
		{"bad fee", BatchRequest{ChainID: 1, TokenA: tokenX, TokenB: tokenY, FeeTier: 1234}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

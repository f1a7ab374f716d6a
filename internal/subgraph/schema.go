package subgraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"poolscope/internal/model"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// tokenData mirrors the indexed service's token shape. All numerics arrive as
// strings and are validated at this boundary.
type tokenData struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals string `json:"decimals"`
}

// poolData mirrors the indexed service's pool shape.
type poolData struct {
	ID                   string    `json:"id"`
	CreatedAtTimestamp   string    `json:"createdAtTimestamp"`
	CreatedAtBlockNumber string    `json:"createdAtBlockNumber"`
	Token0               tokenData `json:"token0"`
	Token1               tokenData `json:"token1"`
	FeeTier              string    `json:"feeTier"`
	Liquidity            string    `json:"liquidity"`
	SqrtPrice            string    `json:"sqrtPrice"`
	Tick                 string    `json:"tick"`
	VolumeUSD            string    `json:"volumeUSD"`
	TotalValueLockedUSD  string    `json:"totalValueLockedUSD"`
	TVLToken0            string    `json:"totalValueLockedToken0"`
	TVLToken1            string    `json:"totalValueLockedToken1"`
	FeesUSD              string    `json:"feesUSD"`
	FeeGrowthGlobal0X128 string    `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 string    `json:"feeGrowthGlobal1X128"`
}

func (t *tokenData) toToken() (model.Token, error) {
	if t.ID == "" {
		return model.Token{}, fmt.Errorf("%w: token missing id", model.ErrUpstream)
	}
	decimals, err := strconv.ParseUint(t.Decimals, 10, 8)
	if err != nil {
		return model.Token{}, fmt.Errorf("%w: token %s decimals %q: %v", model.ErrUpstream, t.ID, t.Decimals, err)
	}
	return model.Token{
		Address:  strings.ToLower(t.ID),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: uint8(decimals),
	}, nil
}

// toRecord validates the upstream shape and converts it to the canonical
// record, failing fast on mismatches instead of letting loose data inward.
func (p *poolData) toRecord(chainID uint64) (*model.PoolRecord, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: pool missing id", model.ErrUpstream)
	}

	tokenA, err := p.Token0.toToken()
	if err != nil {
		return nil, err
	}
	tokenB, err := p.Token1.toToken()
	if err != nil {
		return nil, err
	}

	fee, err := strconv.ParseUint(p.FeeTier, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %s feeTier %q: %v", model.ErrUpstream, p.ID, p.FeeTier, err)
	}

	tick := int64(0)
	if p.Tick != "" {
		tick, err = strconv.ParseInt(p.Tick, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: pool %s tick %q: %v", model.ErrUpstream, p.ID, p.Tick, err)
		}
	}

	createdTs, _ := strconv.ParseUint(p.CreatedAtTimestamp, 10, 64)
	createdBlock, _ := strconv.ParseUint(p.CreatedAtBlockNumber, 10, 64)

	record := &model.PoolRecord{
		Address:              strings.ToLower(p.ID),
		ChainID:              chainID,
		TokenA:               tokenA,
		TokenB:               tokenB,
		FeeTier:              uint32(fee),
		TickSpacing:          model.TickSpacingFor(uint32(fee)),
		SqrtPriceX96:         p.SqrtPrice,
		Tick:                 int32(tick),
		Liquidity:            p.Liquidity,
		CreatedAtTimestamp:   createdTs,
		CreatedAtBlock:       createdBlock,
		VolumeUSD:            p.VolumeUSD,
		TotalValueLockedUSD:  p.TotalValueLockedUSD,
		TotalValueLockedA:    p.TVLToken0,
		TotalValueLockedB:    p.TVLToken1,
		FeesUSD:              p.FeesUSD,
		FeeGrowthGlobal0X128: p.FeeGrowthGlobal0X128,
		FeeGrowthGlobal1X128: p.FeeGrowthGlobal1X128,
	}
	record.Canonicalize()
	return record, nil
}

const poolFields = `
	id
	createdAtTimestamp
	createdAtBlockNumber
	token0 { id symbol name decimals }
	token1 { id symbol name decimals }
	feeTier
	liquidity
	sqrtPrice
	tick
	volumeUSD
	totalValueLockedUSD
	totalValueLockedToken0
	totalValueLockedToken1
	feesUSD
	feeGrowthGlobal0X128
	feeGrowthGlobal1X128`

var (
	queryPoolByID = `query ($id: ID!) { pool(id: $id) {` + poolFields + `
} }`

	queryPoolsByPair = `query ($token0: String!, $token1: String!, $fee: BigInt!) {
  pools(first: 1, where: { token0: $token0, token1: $token1, feeTier: $fee }) {` + poolFields + `
} }`

	queryPools = `query ($where: Pool_filter, $orderBy: Pool_orderBy, $orderDirection: OrderDirection, $first: Int!, $skip: Int!) {
  pools(where: $where, orderBy: $orderBy, orderDirection: $orderDirection, first: $first, skip: $skip) {` + poolFields + `
} }`

	querySearchPools = `query ($text: String!, $first: Int!) {
  pools(
    where: { or: [{ token0_: { symbol_contains_nocase: $text } }, { token1_: { symbol_contains_nocase: $text } }] }
    orderBy: totalValueLockedUSD
    orderDirection: desc
    first: $first
  ) {` + poolFields + `
} }`
)

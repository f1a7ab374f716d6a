// Package subgraph queries the upstream indexed ledger service over its
// query-language wire protocol. Responses are validated against an explicit
// schema at this boundary; shape mismatches surface as upstream errors rather
// than propagating loosely-typed data inward.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"poolscope/internal/model"
)

// Client talks to one indexed-service endpoint per chain.
type Client struct {
	endpoints map[uint64]string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient builds a Client from a chainID -> endpoint URL map.
func NewClient(endpoints map[uint64]string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// GetPool fetches one pool by address.
func (c *Client) GetPool(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
	var out struct {
		Pool *poolData `json:"pool"`
	}
	vars := map[string]any{"id": strings.ToLower(address)}
	if err := c.query(ctx, chainID, queryPoolByID, vars, &out); err != nil {
		return nil, err
	}
	if out.Pool == nil {
		return nil, model.ErrNotFound
	}
	return out.Pool.toRecord(chainID)
}

// GetPoolByTokens fetches the pool for a canonical token pair at a fee tier.
func (c *Client) GetPoolByTokens(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error) {
	lo, hi := model.CanonicalPair(tokenA, tokenB)

	var out struct {
		Pools []poolData `json:"pools"`
	}
	vars := map[string]any{"token0": lo, "token1": hi, "fee": fmt.Sprintf("%d", fee)}
	if err := c.query(ctx, chainID, queryPoolsByPair, vars, &out); err != nil {
		return nil, err
	}
	if len(out.Pools) == 0 {
		return nil, model.ErrNotFound
	}
	return out.Pools[0].toRecord(chainID)
}

// GetPools lists pools matching the filter. All constraints, token membership
// included, are pushed into the upstream query so pagination sees the full
// matching set rather than one pre-filter page.
func (c *Client) GetPools(ctx context.Context, chainID uint64, filter model.PoolFilter) ([]*model.PoolRecord, error) {
	where := map[string]any{}
	if filter.FeeTier != 0 {
		where["feeTier"] = fmt.Sprintf("%d", filter.FeeTier)
	}
	if filter.MinTVLUSD != "" {
		where["totalValueLockedUSD_gte"] = filter.MinTVLUSD
	}
	if filter.MinVolumeUSD != "" {
		where["volumeUSD_gte"] = filter.MinVolumeUSD
	}
	if filter.Token != "" {
		// The filter grammar forbids "or" next to sibling fields, so any
		// other constraints move under an explicit "and".
		either := []map[string]any{
			{"token0": strings.ToLower(filter.Token)},
			{"token1": strings.ToLower(filter.Token)},
		}
		if len(where) == 0 {
			where["or"] = either
		} else {
			where = map[string]any{"and": []map[string]any{where, {"or": either}}}
		}
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = model.OrderByTVL
	}
	orderDirection := filter.OrderDirection
	if orderDirection != "asc" {
		orderDirection = "desc"
	}
	first := filter.First
	if first <= 0 {
		first = 100
	}

	var out struct {
		Pools []poolData `json:"pools"`
	}
	vars := map[string]any{
		"where":          where,
		"orderBy":        orderBy,
		"orderDirection": orderDirection,
		"first":          first,
		"skip":           filter.Skip,
	}
	if err := c.query(ctx, chainID, queryPools, vars, &out); err != nil {
		return nil, err
	}

	return toRecords(out.Pools, chainID)
}

// SearchPools matches text against token symbols over a TVL-ordered top-N
// set. This is substring matching, not a full-text index.
func (c *Client) SearchPools(ctx context.Context, chainID uint64, text string, limit int) ([]*model.PoolRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var out struct {
		Pools []poolData `json:"pools"`
	}
	vars := map[string]any{"text": text, "first": limit}
	if err := c.query(ctx, chainID, querySearchPools, vars, &out); err != nil {
		return nil, err
	}

	return toRecords(out.Pools, chainID)
}

func toRecords(pools []poolData, chainID uint64) ([]*model.PoolRecord, error) {
	records := make([]*model.PoolRecord, 0, len(pools))
	for i := range pools {
		record, err := pools[i].toRecord(chainID)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// query executes one request against the chain's endpoint and decodes the
// data payload into out.
func (c *Client) query(ctx context.Context, chainID uint64, query string, vars map[string]any, out any) error {
	endpoint, ok := c.endpoints[chainID]
	if !ok || endpoint == "" {
		return fmt.Errorf("%w: no endpoint for chain %d", model.ErrUpstream, chainID)
	}

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%w: marshal query: %v", model.ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", model.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: chain %d: %v", model.ErrUpstreamTimeout, chainID, err)
		}
		return fmt.Errorf("%w: chain %d: %v", model.ErrUpstream, chainID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: chain %d status %d: %s", model.ErrUpstream, chainID, resp.StatusCode, snippet)
	}

	var gql gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return fmt.Errorf("%w: decode response: %v", model.ErrUpstream, err)
	}
	if len(gql.Errors) > 0 {
		return fmt.Errorf("%w: chain %d: %s", model.ErrUpstream, chainID, gql.Errors[0].Message)
	}
	if len(gql.Data) == 0 {
		return fmt.Errorf("%w: chain %d: empty data", model.ErrUpstream, chainID)
	}

	if err := json.Unmarshal(gql.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", model.ErrUpstream, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}


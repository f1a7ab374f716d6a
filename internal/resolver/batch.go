package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"poolscope/internal/model"
)

// BatchRequest identifies one pool in a batch lookup, either by address or
// by token tuple.
type BatchRequest struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address,omitempty"`

	TokenA  string `json:"token_a,omitempty"`
	TokenB  string `json:"token_b,omitempty"`
	FeeTier uint32 `json:"fee_tier,omitempty"`
}

func (b BatchRequest) validate() error {
	if b.Address != "" {
		if !model.IsAddress(b.Address) {
			return fmt.Errorf("malformed address %q", b.Address)
		}
		return nil
	}
	if b.TokenA == "" || b.TokenB == "" {
		return fmt.Errorf("either address or token pair is required")
	}
	if !model.ValidFeeTier(b.FeeTier) {
		return fmt.Errorf("unknown fee tier %d", b.FeeTier)
	}
	return nil
}

func (b BatchRequest) String() string {
	if b.Address != "" {
		return fmt.Sprintf("%d:%s", b.ChainID, strings.ToLower(b.Address))
	}
	return fmt.Sprintf("%d:%s/%s@%d", b.ChainID, strings.ToLower(b.TokenA), strings.ToLower(b.TokenB), b.FeeTier)
}

// BatchGetPools resolves each request independently over a bounded worker
// pool. Partial failures are collected into one aggregated error string; the
// call fails wholesale only when every element failed.
func (r *Resolver) BatchGetPools(ctx context.Context, requests []BatchRequest) model.Result[[]*model.PoolRecord] {
	started := time.Now()

	if len(requests) == 0 {
		return model.Ok([]*model.PoolRecord{}, model.SourceCache, started)
	}

	pool, err := ants.NewPool(r.cfg.BatchConcurrency)
	if err != nil {
		return r.finishList(model.Fail[[]*model.PoolRecord](err, model.SourceIndexed, started))
	}
	defer pool.Release()

	type slot struct {
		record *model.PoolRecord
		err    error
	}
	slots := make([]slot, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		i, req := i, req

		if err := req.validate(); err != nil {
			slots[i].err = err
			continue
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			var result model.Result[*model.PoolRecord]
			if req.Address != "" {
				result = r.GetPool(ctx, req.ChainID, req.Address)
			} else {
				result = r.GetPoolByTokens(ctx, req.ChainID, req.TokenA, req.TokenB, req.FeeTier)
			}

			if result.Success {
				slots[i].record = result.Data
			} else {
				slots[i].err = fmt.Errorf("%s", result.Err)
			}
		})
		if submitErr != nil {
			wg.Done()
			slots[i].err = submitErr
		}
	}
	wg.Wait()

	records := make([]*model.PoolRecord, 0, len(requests))
	var failures []string
	for i, s := range slots {
		if s.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", requests[i], s.err))
			continue
		}
		records = append(records, s.record)
	}

	result := model.Result[[]*model.PoolRecord]{
		Success:   len(records) > 0 || len(failures) == 0,
		Data:      records,
		Err:       strings.Join(failures, "; "),
		Source:    model.SourceIndexed,
		Timestamp: time.Now().UTC(),
		LatencyMS: time.Since(started).Milliseconds(),
	}
	return r.finishList(result)
}

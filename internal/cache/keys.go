package cache

import (
	"fmt"
	"strings"

	"poolscope/internal/model"
)

// AddressKey derives the cache key for a (chainID, pool address) lookup.
// Addresses are lowered so checksummed and plain forms agree.
func AddressKey(chainID uint64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(address))
}

// PairKey derives the cache key for a (chainID, tokenA, tokenB, fee) lookup.
// The token pair is canonicalized first, so argument order does not matter.
func PairKey(chainID uint64, tokenA, tokenB string, fee uint32) string {
	lo, hi := model.CanonicalPair(tokenA, tokenB)
	return fmt.Sprintf("%d:%s:%s:%d", chainID, lo, hi, fee)
}

// RecordKeys returns every key the record should be reachable under: its
// address key, plus the pair key when both token addresses are known.
func RecordKeys(p *model.PoolRecord) []string {
	keys := []string{AddressKey(p.ChainID, p.Address)}
	if p.TokenA.Address != "" && p.TokenB.Address != "" {
		keys = append(keys, PairKey(p.ChainID, p.TokenA.Address, p.TokenB.Address, p.FeeTier))
	}
	return keys
}

package resolver

import (
	"strings"

	"poolscope/internal/model"
)

// Synthetic placeholders let UI callers render something when every real
// source is unreachable. They are structurally valid, carry zeroed metrics,
// are flagged with SourceSynthetic, and are never written to the cache.

func syntheticByAddress(chainID uint64, address string) *model.PoolRecord {
	return &model.PoolRecord{
		Address:             strings.ToLower(address),
		ChainID:             chainID,
		SqrtPriceX96:        "0",
		Liquidity:           "0",
		VolumeUSD:           "0",
		TotalValueLockedUSD: "0",
		TotalValueLockedA:   "0",
		TotalValueLockedB:   "0",
		FeesUSD:             "0",
	}
}

func syntheticByTokens(chainID uint64, tokenA, tokenB string, fee uint32) *model.PoolRecord {
	lo, hi := model.CanonicalPair(tokenA, tokenB)
	record := syntheticByAddress(chainID, "")
	record.TokenA = model.Token{Address: lo, Symbol: "UNKNOWN"}
	record.TokenB = model.Token{Address: hi, Symbol: "UNKNOWN"}
	record.FeeTier = fee
	record.TickSpacing = model.TickSpacingFor(fee)
	return record
}

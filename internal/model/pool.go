package model

import "strings"

// Fee tiers supported by V3-style pools, in hundredths of a basis point.
const (
	FeeTierLowest uint32 = 100
	FeeTierLow    uint32 = 500
	FeeTierMedium uint32 = 3000
	FeeTierHigh   uint32 = 10000
)

// FeeTiers lists all supported fee tiers in ascending order.
var FeeTiers = []uint32{FeeTierLowest, FeeTierLow, FeeTierMedium, FeeTierHigh}

// TickSpacingFor returns the tick spacing a V3 factory assigns to a fee tier,
// or 0 for unknown tiers.
func TickSpacingFor(fee uint32) int32 {
	switch fee {
	case FeeTierLowest:
		return 1
	case FeeTierLow:
		return 10
	case FeeTierMedium:
		return 60
	case FeeTierHigh:
		return 200
	default:
		return 0
	}
}

// ValidFeeTier reports whether fee is a known fee tier.
func ValidFeeTier(fee uint32) bool {
	for _, tier := range FeeTiers {
		if fee == tier {
			return true
		}
	}
	return false
}

// Token captures ERC20 metadata for one side of a pool.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// PoolRecord is the canonical normalized pool state returned by every source.
// TokenA and TokenB are stored in canonical order (lower hex address first) so
// that pair lookups are order-independent. Numeric AMM state is carried as
// decimal strings and passed through untouched.
type PoolRecord struct {
	Address string `json:"address"`
	ChainID uint64 `json:"chain_id"`

	TokenA Token `json:"token_a"`
	TokenB Token `json:"token_b"`

	FeeTier     uint32 `json:"fee_tier"`
	TickSpacing int32  `json:"tick_spacing"`

	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
	Liquidity    string `json:"liquidity"`

	CreatedAtTimestamp uint64 `json:"created_at_timestamp"`
	CreatedAtBlock     uint64 `json:"created_at_block"`

	VolumeUSD            string `json:"volume_usd"`
	TotalValueLockedUSD  string `json:"total_value_locked_usd"`
	TotalValueLockedA    string `json:"total_value_locked_token_a"`
	TotalValueLockedB    string `json:"total_value_locked_token_b"`
	FeesUSD              string `json:"fees_usd"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
}

// CanonicalPair returns the token addresses in canonical order (lower hex
// address first). Both cache keys and upstream queries are built from this
// ordering.
func CanonicalPair(tokenA, tokenB string) (string, string) {
	a := strings.ToLower(tokenA)
	b := strings.ToLower(tokenB)
	if a <= b {
		return a, b
	}
	return b, a
}

// Canonicalize orders the record's token pair canonically, swapping the
// per-token TVL fields alongside.
func (p *PoolRecord) Canonicalize() {
	a := strings.ToLower(p.TokenA.Address)
	b := strings.ToLower(p.TokenB.Address)
	if a <= b {
		return
	}
	p.TokenA, p.TokenB = p.TokenB, p.TokenA
	p.TotalValueLockedA, p.TotalValueLockedB = p.TotalValueLockedB, p.TotalValueLockedA
}

// IsAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Ordering fields accepted by PoolFilter.OrderBy.
const (
	OrderByTVL       = "totalValueLockedUSD"
	OrderByVolume    = "volumeUSD"
	OrderByFees      = "feesUSD"
	OrderByCreatedAt = "createdAtTimestamp"
)

// PoolFilter narrows and orders a pool listing. Zero values mean "no
// constraint". Minimum amounts are USD-denominated decimal strings.
type PoolFilter struct {
	Token          string `json:"token,omitempty"`
	FeeTier        uint32 `json:"fee_tier,omitempty"`
	MinTVLUSD      string `json:"min_tvl_usd,omitempty"`
	MinVolumeUSD   string `json:"min_volume_usd,omitempty"`
	OrderBy        string `json:"order_by,omitempty"`
	OrderDirection string `json:"order_direction,omitempty"`
	First          int    `json:"first,omitempty"`
	Skip           int    `json:"skip,omitempty"`
}

// Matches reports whether the record passes the filter's token, fee tier and
// minimum-metric constraints. Unparseable USD fields on the record fail the
// corresponding minimum check.
func (f PoolFilter) Matches(p *PoolRecord) bool {
	if p == nil {
		return false
	}
	if f.Token != "" {
		token := strings.ToLower(f.Token)
		if strings.ToLower(p.TokenA.Address) != token && strings.ToLower(p.TokenB.Address) != token {
			return false
		}
	}
	if f.FeeTier != 0 && p.FeeTier != f.FeeTier {
		return false
	}
	if f.MinTVLUSD != "" && !atLeast(p.TotalValueLockedUSD, f.MinTVLUSD) {
		return false
	}
	if f.MinVolumeUSD != "" && !atLeast(p.VolumeUSD, f.MinVolumeUSD) {
		return false
	}
	return true
}

func atLeast(value, minimum string) bool {
	min, err := decimal.NewFromString(minimum)
	if err != nil {
		return true
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return false
	}
	return v.GreaterThanOrEqual(min)
}

// CompareUSD compares two USD decimal strings, treating unparseable values as
// smallest. Returns -1, 0 or 1.
func CompareUSD(a, b string) int {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return da.Cmp(db)
}

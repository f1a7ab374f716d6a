package model

import "testing"

func TestCanonicalPair(t *testing.T) {
	a := "0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	b := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	lo, hi := CanonicalPair(a, b)
	lo2, hi2 := CanonicalPair(b, a)

	if lo != lo2 || hi != hi2 {
		t.Fatalf("ordering not symmetric: (%s,%s) != (%s,%s)", lo, hi, lo2, hi2)
	}
	if lo != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("expected lower address first, got %s", lo)
	}
}

func TestCanonicalizeSwapsTVL(t *testing.T) {
	p := PoolRecord{
		TokenA:            Token{Address: "0xffffffffffffffffffffffffffffffffffffffff"},
		TokenB:            Token{Address: "0x0000000000000000000000000000000000000001"},
		TotalValueLockedA: "10",
		TotalValueLockedB: "20",
	}
	p.Canonicalize()

	if p.TokenA.Address != "0x0000000000000000000000000000000000000001" {
		t.Fatalf("tokens not swapped: %+v", p)
	}
	if p.TotalValueLockedA != "20" || p.TotalValueLockedB != "10" {
		t.Fatalf("tvl fields not swapped: %+v", p)
	}
}

func TestIsAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0x1f98431c8ad98523631ae4a59f267346ea31f984", true},
		{"0x1F98431c8aD98523631AE4a59f267346ea31F984", true},
		{"1f98431c8ad98523631ae4a59f267346ea31f984", false},
		{"0x1f98", false},
		{"0x1f98431c8ad98523631ae4a59f267346ea31f9zz", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsAddress(tc.in); got != tc.want {
			t.Fatalf("IsAddress(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFilterMatches(t *testing.T) {
	p := &PoolRecord{
		TokenA:              Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		TokenB:              Token{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"},
		FeeTier:             FeeTierMedium,
		TotalValueLockedUSD: "1500000.5",
		VolumeUSD:           "42000",
	}

	if !(PoolFilter{}).Matches(p) {
		t.Fatalf("empty filter must match")
	}
	if !(PoolFilter{Token: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"}).Matches(p) {
		t.Fatalf("token filter should be case-insensitive")
	}
	if (PoolFilter{FeeTier: FeeTierLow}).Matches(p) {
		t.Fatalf("fee tier mismatch must not match")
	}
	if !(PoolFilter{MinTVLUSD: "1000000"}).Matches(p) {
		t.Fatalf("tvl above minimum must match")
	}
	if (PoolFilter{MinVolumeUSD: "50000"}).Matches(p) {
		t.Fatalf("volume below minimum must not match")
	}
}

func TestCompareUSD(t *testing.T) {
	if CompareUSD("10", "9.99") != 1 {
		t.Fatalf("expected 10 > 9.99")
	}
	if CompareUSD("not-a-number", "1") != -1 {
		t.Fatalf("unparseable must sort smallest")
	}
}

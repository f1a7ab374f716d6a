package chain

import (
	"math/big"
	"testing"
)

func TestInt24FromBig(t *testing.T) {
	cases := []struct {
		in      int64
		want    int32
		wantErr bool
	}{
		{0, 0, false},
		{60, 60, false},
		{-887272, -887272, false},
		{1 << 23, 0, true},
		{-(1 << 23) - 1, 0, true},
	}
	for _, tc := range cases {
		got, err := int24FromBig(big.NewInt(tc.in))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("int24FromBig(%d): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("int24FromBig(%d): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("int24FromBig(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBytes32ToString(t *testing.T) {
	var raw [32]byte
	copy(raw[:], "MKR")

	got, ok := bytes32ToString(raw)
	if !ok || got != "MKR" {
		t.Fatalf("bytes32ToString = %q, %v", got, ok)
	}

	if _, ok := bytes32ToString(42); ok {
		t.Fatalf("expected failure for non-bytes value")
	}
}

func TestABIsParse(t *testing.T) {
	if _, err := FactoryABI(); err != nil {
		t.Fatalf("factory abi: %v", err)
	}
	if _, err := PoolABI(); err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	if _, err := erc20ABIStringInstance(); err != nil {
		t.Fatalf("erc20 string abi: %v", err)
	}
	if _, err := erc20ABIBytes32Instance(); err != nil {
		t.Fatalf("erc20 bytes32 abi: %v", err)
	}
}

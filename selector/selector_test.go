package selector

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testPair() PairKey {
	return PairKey{
		TokenIn:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenOut: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func TestSelector_PicksMaxOutput(t *testing.T) {
	s := New()
	pair := testPair()
	s.Record(pair, Quote{PoolID: "low", AmountOut: big.NewInt(100)})
	s.Record(pair, Quote{PoolID: "high", AmountOut: big.NewInt(200)})
	s.Record(pair, Quote{PoolID: "mid", AmountOut: big.NewInt(150)})

	best, ok := s.Best(pair)
	if !ok {
		t.Fatalf("want a recorded best")
	}
	if best.PoolID != "high" {
		t.Fatalf("want high, got %s", best.PoolID)
	}
}

func TestSelector_RetainsPreviousBestWithNoUpdates(t *testing.T) {
	s := New()
	pair := testPair()
	s.Record(pair, Quote{PoolID: "only", AmountOut: big.NewInt(42), BlockNumber: 1})

	best, ok := s.Best(pair)
	if !ok || best.PoolID != "only" {
		t.Fatalf("want previous best retained, got %v ok=%v", best, ok)
	}
}

func TestSelector_IgnoresNonPositiveQuotes(t *testing.T) {
	s := New()
	pair := testPair()
	s.Record(pair, Quote{PoolID: "zero", AmountOut: big.NewInt(0)})
	if _, ok := s.Best(pair); ok {
		t.Fatalf("zero-amount quote should not be recorded as a best")
	}
}

// TestSelector_TracksPerPoolDecreasesNotJustHistoricalMax confirms a
// pool's own later, lower quote supersedes its earlier high one,
// instead of a stale historical maximum sticking forever.
func TestSelector_TracksPerPoolDecreasesNotJustHistoricalMax(t *testing.T) {
	s := New()
	pair := testPair()

	s.Record(pair, Quote{PoolID: "a", AmountOut: big.NewInt(200)})
	s.Record(pair, Quote{PoolID: "b", AmountOut: big.NewInt(80)})

	best, ok := s.Best(pair)
	if !ok || best.PoolID != "a" {
		t.Fatalf("want a=200 initially best, got %v ok=%v", best, ok)
	}

	// Pool a's own output drops; b (unchanged at 80) should now win
	// since a's stale 200 is no longer the truth for that pool.
	s.Record(pair, Quote{PoolID: "a", AmountOut: big.NewInt(50)})

	best, ok = s.Best(pair)
	if !ok || best.PoolID != "b" {
		t.Fatalf("want b=80 best after a dropped to 50, got %v ok=%v", best, ok)
	}
}

package analytical

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/poolstate"
)

func newV2Pool(r0, r1 int64) *UniswapV2State {
	return &UniswapV2State{
		Token0: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token1: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Decimals0: 6, Decimals1: 18,
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
	}
}

// TestUniswapV2_AmountOutMonotone is property 2: get_amount_out is
// monotonically non-decreasing in amount_in for fixed reserves.
func TestUniswapV2_AmountOutMonotone(t *testing.T) {
	pool := newV2Pool(1_000_000_000_000, 500_000_000_000_000_000_000)
	prev := big.NewInt(0)
	for _, in := range []int64{1_000, 10_000, 100_000, 1_000_000, 10_000_000} {
		res, err := pool.GetAmountOut(big.NewInt(in), pool.Token0, pool.Token1)
		if err != nil {
			t.Fatalf("GetAmountOut(%d): %v", in, err)
		}
		if res.AmountOut.Cmp(prev) < 0 {
			t.Fatalf("amount_out decreased: in=%d out=%v prev=%v", in, res.AmountOut, prev)
		}
		prev = res.AmountOut
	}
}

// TestUniswapV2_USDCWETHSwap is end-to-end scenario 1.
func TestUniswapV2_USDCWETHSwap(t *testing.T) {
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	pool := &UniswapV2State{
		Token0: usdc, Token1: weth,
		Decimals0: 6, Decimals1: 18,
		Reserve0: big.NewInt(0).SetUint64(10_000_000_000_000),
		Reserve1: big.NewInt(0).SetUint64(4_000_000_000_000_000_000_000),
	}
	res, err := pool.GetAmountOut(big.NewInt(1_000_000_000), usdc, weth)
	if err != nil {
		t.Fatalf("GetAmountOut: %v", err)
	}
	if res.AmountOut.Sign() <= 0 {
		t.Fatalf("want positive amount_out, got %v", res.AmountOut)
	}
	next := res.NewState.(*UniswapV2State)
	if next.Reserve0.Cmp(pool.Reserve0) <= 0 {
		t.Fatalf("reserve0 should increase after a sell of token0")
	}
	if next.Reserve1.Cmp(pool.Reserve1) >= 0 {
		t.Fatalf("reserve1 should decrease after a buy of token1")
	}
}

func TestUniswapV2_SpotPriceSymmetry(t *testing.T) {
	pool := newV2Pool(1_000_000, 2_000_000)
	ab, err := pool.SpotPrice(pool.Token0, pool.Token1)
	if err != nil {
		t.Fatalf("SpotPrice(0,1): %v", err)
	}
	ba, err := pool.SpotPrice(pool.Token1, pool.Token0)
	if err != nil {
		t.Fatalf("SpotPrice(1,0): %v", err)
	}
	product := ab * ba
	if product < 0.999 || product > 1.001 {
		t.Fatalf("want product ~= 1, got %v", product)
	}
}

func TestUniswapV2_DeltaTransitionRejectsOversizedScalar(t *testing.T) {
	pool := newV2Pool(1, 1)
	delta := poolstate.Delta{Attributes: map[string][]byte{"reserve0": make([]byte, 33)}}
	if err := pool.DeltaTransition(delta, nil, nil); err == nil {
		t.Fatalf("expected TransitionError for oversized reserve0")
	}
}

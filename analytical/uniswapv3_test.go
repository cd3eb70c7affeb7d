package analytical

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/poolstate"
)

func newV3Pool() *UniswapV3State {
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	sqrtPriceX96 := new(big.Int).Lsh(big.NewInt(1), 96) // price = 1.0
	return &UniswapV3State{
		Token0: token0, Token1: token1,
		Decimals0: 18, Decimals1: 18,
		SqrtPriceX96: sqrtPriceX96,
		Liquidity:    big.NewInt(1_000_000_000_000),
		Tick:         0,
		TickSpacing:  60,
		FeePips:      3000,
		Ticks: NewTickList([]TickInfo{
			{Index: -600, NetLiquidity: big.NewInt(500_000_000_000)},
			{Index: 600, NetLiquidity: big.NewInt(-500_000_000_000)},
		}),
	}
}

func TestUniswapV3_SpotPriceAtParity(t *testing.T) {
	pool := newV3Pool()
	price, err := pool.SpotPrice(pool.Token0, pool.Token1)
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if price < 0.99 || price > 1.01 {
		t.Fatalf("want price ~= 1 at tick 0, got %v", price)
	}
}

func TestUniswapV3_GetAmountOutPositive(t *testing.T) {
	pool := newV3Pool()
	res, err := pool.GetAmountOut(big.NewInt(1_000_000), pool.Token0, pool.Token1)
	if err != nil {
		t.Fatalf("GetAmountOut: %v", err)
	}
	if res.AmountOut.Sign() <= 0 {
		t.Fatalf("want positive amount_out, got %v", res.AmountOut)
	}
}

func TestUniswapV3_FeeMatchesPips(t *testing.T) {
	pool := newV3Pool()
	fee, err := pool.Fee()
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if fee != 0.003 {
		t.Fatalf("want fee 0.003, got %v", fee)
	}
}

func TestUniswapV3_DeltaTransitionUpdatesTick(t *testing.T) {
	pool := newV3Pool()
	delta := poolstate.Delta{Attributes: map[string][]byte{"tick": {0x00, 0x01, 0x2c}}}
	if err := pool.DeltaTransition(delta, nil, nil); err != nil {
		t.Fatalf("DeltaTransition: %v", err)
	}
	if pool.Tick != 300 {
		t.Fatalf("want tick 300, got %d", pool.Tick)
	}
}

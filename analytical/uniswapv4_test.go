package analytical

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func newV4Pool() *UniswapV4State {
	return &UniswapV4State{
		V3:                   newV3Pool(),
		Hook:                 common.Address{},
		KeyLPFeePips:         3000,
		ProtocolFeeZeroToOne: 1000, // 0.1% of output
		ProtocolFeeOneToZero: 0,
	}
}

func TestUniswapV4_RejectsDisallowedHook(t *testing.T) {
	hook := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	if IsHookAllowed(hook) {
		t.Fatalf("unexpected: hook allowed by default")
	}
}

func TestUniswapV4_ProtocolFeeReducesOutput(t *testing.T) {
	withFee := newV4Pool()
	withoutFee := newV4Pool()
	withoutFee.ProtocolFeeZeroToOne = 0

	resWith, err := withFee.GetAmountOut(big.NewInt(1_000_000), withFee.V3.Token0, withFee.V3.Token1)
	if err != nil {
		t.Fatalf("GetAmountOut (with fee): %v", err)
	}
	resWithout, err := withoutFee.GetAmountOut(big.NewInt(1_000_000), withoutFee.V3.Token0, withoutFee.V3.Token1)
	if err != nil {
		t.Fatalf("GetAmountOut (without fee): %v", err)
	}
	if resWith.AmountOut.Cmp(resWithout.AmountOut) >= 0 {
		t.Fatalf("protocol fee should reduce output: with=%v without=%v", resWith.AmountOut, resWithout.AmountOut)
	}
}

func TestUniswapV4_NoFeeOppositeDirection(t *testing.T) {
	pool := newV4Pool() // ProtocolFeeOneToZero == 0
	res, err := pool.GetAmountOut(big.NewInt(1_000_000), pool.V3.Token1, pool.V3.Token0)
	if err != nil {
		t.Fatalf("GetAmountOut: %v", err)
	}
	if res.AmountOut.Sign() <= 0 {
		t.Fatalf("want positive amount_out, got %v", res.AmountOut)
	}
}

package analytical

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/poolstate"
)

// uniV2Fee is the standard 997/1000 constant-product fee (30bps).
var (
	uniV2FeeNum = big.NewInt(997)
	uniV2FeeDen = big.NewInt(1000)
)

// UniswapV2State is the constant-product pool: reserve0/reserve1,
// decimals, and the two token addresses.
type UniswapV2State struct {
	Token0, Token1     common.Address
	Decimals0, Decimals1 int
	Reserve0, Reserve1 *big.Int
}

// DecodeUniswapV2 builds a UniswapV2State from a snapshot carrying
// reserve0/reserve1 big-endian attributes.
func DecodeUniswapV2(s Snapshot, token0, token1 common.Address, dec0, dec1 int) (*UniswapV2State, error) {
	r0, err := s.require("reserve0")
	if err != nil {
		return nil, err
	}
	r1, err := s.require("reserve1")
	if err != nil {
		return nil, err
	}
	return &UniswapV2State{
		Token0: token0, Token1: token1,
		Decimals0: dec0, Decimals1: dec1,
		Reserve0: new(big.Int).SetBytes(r0),
		Reserve1: new(big.Int).SetBytes(r1),
	}, nil
}

func (p *UniswapV2State) Fee() (float64, error) { return 0.003, nil }

func (p *UniswapV2State) reserves(base, quote common.Address) (rBase, rQuote *big.Int, decBase, decQuote int, err error) {
	switch {
	case base == p.Token0 && quote == p.Token1:
		return p.Reserve0, p.Reserve1, p.Decimals0, p.Decimals1, nil
	case base == p.Token1 && quote == p.Token0:
		return p.Reserve1, p.Reserve0, p.Decimals1, p.Decimals0, nil
	default:
		return nil, nil, 0, 0, &ValueError{Msg: "token not in pool"}
	}
}

// SpotPrice is reserve-ratio-derived, scaled by the decimal difference.
func (p *UniswapV2State) SpotPrice(base, quote common.Address) (float64, error) {
	rBase, rQuote, decBase, decQuote, err := p.reserves(base, quote)
	if err != nil {
		return 0, err
	}
	if rBase.Sign() == 0 {
		return 0, &ValueError{Msg: "zero reserve"}
	}
	fBase := new(big.Float).SetInt(rBase)
	fQuote := new(big.Float).SetInt(rQuote)
	ratio, _ := new(big.Float).Quo(fQuote, fBase).Float64()
	scale := 1.0
	diff := decBase - decQuote
	for i := 0; i < diff; i++ {
		scale *= 10
	}
	for i := 0; i > diff; i-- {
		scale /= 10
	}
	return ratio * scale, nil
}

// GetAmountOut is the standard x*y=k formula with the 997/1000 fee:
// amountOut = (amountIn * 997 * reserveOut) / (reserveIn * 1000 + amountIn * 997).
// Monotone in amountIn for fixed reserves (property 2).
func (p *UniswapV2State) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (*poolstate.GetAmountOutResult, error) {
	rIn, rOut, _, _, err := p.reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() <= 0 {
		return nil, &ValueError{Msg: "amount_in must be positive"}
	}

	amountInWithFee := new(big.Int).Mul(amountIn, uniV2FeeNum)
	numerator := new(big.Int).Mul(amountInWithFee, rOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(rIn, uniV2FeeDen), amountInWithFee)
	amountOut := new(big.Int).Div(numerator, denominator)

	clone := p.CloneBox().(*UniswapV2State)
	if tokenIn == p.Token0 {
		clone.Reserve0 = new(big.Int).Add(p.Reserve0, amountIn)
		clone.Reserve1 = new(big.Int).Sub(p.Reserve1, amountOut)
	} else {
		clone.Reserve1 = new(big.Int).Add(p.Reserve1, amountIn)
		clone.Reserve0 = new(big.Int).Sub(p.Reserve0, amountOut)
	}

	return &poolstate.GetAmountOutResult{AmountOut: amountOut, GasUsed: 0, NewState: clone}, nil
}

// GetLimits returns the full opposing reserve as the theoretical
// ceiling; Uniswap V2 has no adapter-reported hard limit.
func (p *UniswapV2State) GetLimits(sell, buy common.Address) (*big.Int, *big.Int, error) {
	rIn, rOut, _, _, err := p.reserves(sell, buy)
	if err != nil {
		return nil, nil, err
	}
	return rIn, rOut, nil
}

// DeltaTransition replaces reserve0/reserve1 from the delta's raw
// attribute bytes, matching spec.md's "malformed scalars fail the
// transition" requirement.
func (p *UniswapV2State) DeltaTransition(delta poolstate.Delta, tokens []common.Address, balances map[common.Address]*big.Int) error {
	if r0, ok := delta.Attributes["reserve0"]; ok {
		if len(r0) == 0 || len(r0) > 32 {
			return &poolstate.TransitionError{Msg: "malformed reserve0"}
		}
		p.Reserve0 = new(big.Int).SetBytes(r0)
	}
	if r1, ok := delta.Attributes["reserve1"]; ok {
		if len(r1) == 0 || len(r1) > 32 {
			return &poolstate.TransitionError{Msg: "malformed reserve1"}
		}
		p.Reserve1 = new(big.Int).SetBytes(r1)
	}
	return nil
}

func (p *UniswapV2State) CloneBox() poolstate.ProtocolSim {
	return &UniswapV2State{
		Token0: p.Token0, Token1: p.Token1,
		Decimals0: p.Decimals0, Decimals1: p.Decimals1,
		Reserve0: new(big.Int).Set(p.Reserve0),
		Reserve1: new(big.Int).Set(p.Reserve1),
	}
}

var _ poolstate.ProtocolSim = (*UniswapV2State)(nil)

package analytical

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/poolstate"
)

// AllowedHooks is the set of hook addresses the decoder accepts; any
// pool whose hook isn't in this list is filtered out by the stream
// decoder before it ever reaches poolstate, per spec.md §4.5's hook
// allow-list requirement. Empty means "no hooks supported" (hook ==
// zero address only).
var AllowedHooks = map[common.Address]struct{}{}

// IsHookAllowed reports whether hook is the no-hook sentinel or appears
// in AllowedHooks.
func IsHookAllowed(hook common.Address) bool {
	if hook == (common.Address{}) {
		return true
	}
	_, ok := AllowedHooks[hook]
	return ok
}

// UniswapV4State embeds the same tick-based math as V3 and adds the
// triple fee model: the pool's own LP fee plus a protocol fee taken
// per swap direction, and the hook address the pool is bound to.
type UniswapV4State struct {
	V3 *UniswapV3State

	Hook              common.Address
	KeyLPFeePips      uint32
	ProtocolFeeZeroToOne uint32 // pips taken from output on token0->token1 swaps
	ProtocolFeeOneToZero uint32 // pips taken from output on token1->token0 swaps
}

// DecodeUniswapV4 builds a UniswapV4State, rejecting pools bound to a
// hook outside AllowedHooks.
func DecodeUniswapV4(s Snapshot, token0, token1 common.Address, dec0, dec1 int, ticks []TickInfo, hook common.Address) (*UniswapV4State, error) {
	if !IsHookAllowed(hook) {
		return nil, &ValueError{Msg: "hook not in allow-list: " + hook.Hex()}
	}
	v3, err := DecodeUniswapV3(s, token0, token1, dec0, dec1, ticks)
	if err != nil {
		return nil, err
	}
	keyFee, err := s.require("key_lp_fee")
	if err != nil {
		return nil, err
	}
	zeroToOne, err := s.require("protocol_fees/zero2one")
	if err != nil {
		return nil, err
	}
	oneToZero, err := s.require("protocol_fees/one2zero")
	if err != nil {
		return nil, err
	}
	return &UniswapV4State{
		V3:                   v3,
		Hook:                 hook,
		KeyLPFeePips:         uint32(beBytesToUint64(keyFee)),
		ProtocolFeeZeroToOne: uint32(beBytesToUint64(zeroToOne)),
		ProtocolFeeOneToZero: uint32(beBytesToUint64(oneToZero)),
	}, nil
}

// Fee is the pool's LP fee; the protocol fee is deducted separately
// inside get_amount_out and is not part of the quoted swap fee.
func (p *UniswapV4State) Fee() (float64, error) {
	return float64(p.KeyLPFeePips) / 1_000_000, nil
}

func (p *UniswapV4State) SpotPrice(base, quote common.Address) (float64, error) {
	return p.V3.SpotPrice(base, quote)
}

// GetAmountOut runs the V3 tick walk using the pool's own LP fee, then
// deducts the direction-appropriate protocol fee from the output.
func (p *UniswapV4State) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (*poolstate.GetAmountOutResult, error) {
	v3 := p.V3.CloneBox().(*UniswapV3State)
	v3.FeePips = p.KeyLPFeePips

	res, err := v3.GetAmountOut(amountIn, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	protocolFeePips := p.ProtocolFeeZeroToOne
	if tokenIn == p.V3.Token1 {
		protocolFeePips = p.ProtocolFeeOneToZero
	}
	amountOut := res.AmountOut
	if protocolFeePips > 0 {
		fee := new(big.Int).Mul(amountOut, big.NewInt(int64(protocolFeePips)))
		fee.Div(fee, big.NewInt(1_000_000))
		amountOut = new(big.Int).Sub(amountOut, fee)
	}

	clone := p.CloneBox().(*UniswapV4State)
	clone.V3 = res.NewState.(*UniswapV3State)
	clone.V3.FeePips = p.V3.FeePips

	return &poolstate.GetAmountOutResult{AmountOut: amountOut, GasUsed: res.GasUsed, NewState: clone}, nil
}

func (p *UniswapV4State) GetLimits(sell, buy common.Address) (*big.Int, *big.Int, error) {
	return p.V3.GetLimits(sell, buy)
}

func (p *UniswapV4State) DeltaTransition(delta poolstate.Delta, tokens []common.Address, balances map[common.Address]*big.Int) error {
	if err := p.V3.DeltaTransition(delta, tokens, balances); err != nil {
		return err
	}
	if v, ok := delta.Attributes["key_lp_fee"]; ok {
		p.KeyLPFeePips = uint32(beBytesToUint64(v))
	}
	if v, ok := delta.Attributes["protocol_fees/zero2one"]; ok {
		p.ProtocolFeeZeroToOne = uint32(beBytesToUint64(v))
	}
	if v, ok := delta.Attributes["protocol_fees/one2zero"]; ok {
		p.ProtocolFeeOneToZero = uint32(beBytesToUint64(v))
	}
	return nil
}

func (p *UniswapV4State) CloneBox() poolstate.ProtocolSim {
	return &UniswapV4State{
		V3:                   p.V3.CloneBox().(*UniswapV3State),
		Hook:                 p.Hook,
		KeyLPFeePips:         p.KeyLPFeePips,
		ProtocolFeeZeroToOne: p.ProtocolFeeZeroToOne,
		ProtocolFeeOneToZero: p.ProtocolFeeOneToZero,
	}
}

var _ poolstate.ProtocolSim = (*UniswapV4State)(nil)

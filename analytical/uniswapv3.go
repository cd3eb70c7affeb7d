package analytical

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/poolstate"
)

// q96 is 2^96, the fixed-point base Uniswap V3 uses for sqrt_price_x96.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// maxTicksCrossedPerSwap bounds the tick-by-tick walk so a thin-liquidity
// pool can never spin get_amount_out forever.
const maxTicksCrossedPerSwap = 128

// UniswapV3State is the concentrated-liquidity pool: current
// sqrt_price_x96, in-range liquidity, tick, tick_spacing, fee tier, and
// the sorted tick list of liquidity-net deltas.
type UniswapV3State struct {
	Token0, Token1       common.Address
	Decimals0, Decimals1 int
	SqrtPriceX96         *big.Int
	Liquidity            *big.Int
	Tick                 int32
	TickSpacing          int32
	FeePips              uint32 // e.g. 500, 3000, 10000 (hundredths of a bip)
	Ticks                *TickList
}

// DecodeUniswapV3 builds a UniswapV3State from a snapshot carrying
// sqrt_price_x96, liquidity, tick, tick_spacing, fee big-endian
// attributes, plus a caller-supplied tick list. The snapshot's
// ticks/{index}/net_liquidity attributes are not read here: the pool's
// tick list is exactly the ticks argument.
func DecodeUniswapV3(s Snapshot, token0, token1 common.Address, dec0, dec1 int, ticks []TickInfo) (*UniswapV3State, error) {
	sp, err := s.require("sqrt_price_x96")
	if err != nil {
		return nil, err
	}
	liq, err := s.require("liquidity")
	if err != nil {
		return nil, err
	}
	tickRaw, err := s.require("tick")
	if err != nil {
		return nil, err
	}
	spacingRaw, err := s.require("tick_spacing")
	if err != nil {
		return nil, err
	}
	feeRaw, err := s.require("fee")
	if err != nil {
		return nil, err
	}
	return &UniswapV3State{
		Token0: token0, Token1: token1,
		Decimals0: dec0, Decimals1: dec1,
		SqrtPriceX96: new(big.Int).SetBytes(sp),
		Liquidity:    new(big.Int).SetBytes(liq),
		Tick:         i24BEBytesToI32(tickRaw),
		TickSpacing:  int32(beBytesToUint64(spacingRaw)),
		FeePips:      uint32(beBytesToUint64(feeRaw)),
		Ticks:        NewTickList(ticks),
	}, nil
}

func (p *UniswapV3State) Fee() (float64, error) {
	return float64(p.FeePips) / 1_000_000, nil
}

// sqrtPriceFloat returns sqrt_price_x96 / 2^96 as a big.Float.
func (p *UniswapV3State) sqrtPriceFloat() *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(p.SqrtPriceX96), q96)
}

// sqrtPriceAtTick approximates sqrt(1.0001^tick) in float64; adequate
// for a closed-form simulation (this package never touches EVM bytecode).
func sqrtPriceAtTick(tick int32) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

func (p *UniswapV3State) priceToken0PerToken1() float64 {
	sp, _ := p.sqrtPriceFloat().Float64()
	price := sp * sp // token1 per token0, raw (un-decimal-adjusted)
	scale := math.Pow(10, float64(p.Decimals0-p.Decimals1))
	return price * scale
}

func (p *UniswapV3State) SpotPrice(base, quote common.Address) (float64, error) {
	price := p.priceToken0PerToken1() // token1 per token0
	switch {
	case base == p.Token0 && quote == p.Token1:
		return price, nil
	case base == p.Token1 && quote == p.Token0:
		if price == 0 {
			return 0, &ValueError{Msg: "zero price"}
		}
		return 1 / price, nil
	default:
		return 0, &ValueError{Msg: "token not in pool"}
	}
}

// GetAmountOut walks the tick list, consuming in-range liquidity one
// range at a time until amountIn is exhausted or liquidity runs out,
// per spec.md §4.5's tick-by-tick swap description.
func (p *UniswapV3State) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (*poolstate.GetAmountOutResult, error) {
	zeroForOne := tokenIn == p.Token0
	if !zeroForOne && tokenIn != p.Token1 {
		return nil, &ValueError{Msg: "token not in pool"}
	}
	if amountIn.Sign() <= 0 {
		return nil, &ValueError{Msg: "amount_in must be positive"}
	}

	feeFactor := 1 - float64(p.FeePips)/1_000_000
	remaining := new(big.Float).SetInt(amountIn)
	remaining.Mul(remaining, big.NewFloat(feeFactor))

	sqrtPrice := p.sqrtPriceFloat()
	spF, _ := sqrtPrice.Float64()
	liquidity := new(big.Float).SetInt(p.Liquidity)
	tick := p.Tick
	amountOut := new(big.Float)

	for i := 0; i < maxTicksCrossedPerSwap && remaining.Sign() > 0; i++ {
		nextTick, ok := p.Ticks.NextInitialized(tick, zeroForOne)
		targetSqrtP := spF
		crossing := false
		if ok {
			targetSqrtP = sqrtPriceAtTick(nextTick.Index)
			crossing = true
		} else if zeroForOne {
			targetSqrtP = spF * 1e-6
		} else {
			targetSqrtP = spF * 1e6
		}

		liqF, _ := liquidity.Float64()
		if liqF <= 0 {
			if !crossing {
				break
			}
			spF = targetSqrtP
			tick = nextTick.Index
			if zeroForOne {
				liquidity.Sub(liquidity, new(big.Float).SetInt(nextTick.NetLiquidity))
			} else {
				liquidity.Add(liquidity, new(big.Float).SetInt(nextTick.NetLiquidity))
			}
			continue
		}

		var amountInForRange, amountOutForRange float64
		if zeroForOne {
			// selling token0: price falls, consuming 1/sqrtPTarget - 1/sqrtP of token0
			amountInForRange = liqF * (1/targetSqrtP - 1/spF)
			amountOutForRange = liqF * (spF - targetSqrtP)
		} else {
			// selling token1: price rises, consuming sqrtPTarget - sqrtP of token1
			amountInForRange = liqF * (targetSqrtP - spF)
			amountOutForRange = liqF * (1/spF - 1/targetSqrtP)
		}
		if amountInForRange < 0 {
			amountInForRange = -amountInForRange
		}
		if amountOutForRange < 0 {
			amountOutForRange = -amountOutForRange
		}

		rem, _ := remaining.Float64()
		if amountInForRange >= rem || !crossing {
			frac := rem / amountInForRange
			if amountInForRange == 0 || frac > 1 {
				frac = 1
			}
			amountOut.Add(amountOut, big.NewFloat(amountOutForRange*frac))
			remaining.SetFloat64(0)
			break
		}

		amountOut.Add(amountOut, big.NewFloat(amountOutForRange))
		remaining.Sub(remaining, big.NewFloat(amountInForRange))
		spF = targetSqrtP
		tick = nextTick.Index
		if zeroForOne {
			liquidity.Sub(liquidity, new(big.Float).SetInt(nextTick.NetLiquidity))
		} else {
			liquidity.Add(liquidity, new(big.Float).SetInt(nextTick.NetLiquidity))
		}
	}

	out, _ := amountOut.Int(nil)

	newSqrtPrice, _ := new(big.Float).Mul(big.NewFloat(spF), q96).Int(nil)
	newLiquidity, _ := liquidity.Int(nil)
	clone := p.CloneBox().(*UniswapV3State)
	clone.SqrtPriceX96 = newSqrtPrice
	clone.Liquidity = newLiquidity
	clone.Tick = tick

	return &poolstate.GetAmountOutResult{AmountOut: out, GasUsed: 0, NewState: clone}, nil
}

// GetLimits returns the current in-range liquidity value as both the
// sell and the buy limit. The value is not converted into either
// token's units, and no tick boundary is taken into account.
func (p *UniswapV3State) GetLimits(sell, buy common.Address) (*big.Int, *big.Int, error) {
	zeroForOne := sell == p.Token0
	if !zeroForOne && sell != p.Token1 {
		return nil, nil, &ValueError{Msg: "token not in pool"}
	}
	liq, _ := uint256.FromBig(p.Liquidity)
	sellLimit := liq.ToBig()
	buyLimit := new(big.Int).Set(sellLimit)
	return sellLimit, buyLimit, nil
}

// DeltaTransition applies scalar field replacement the same way
// UniswapV2State does; the caller is responsible for re-decoding the
// tick list when a ticks/* delta attribute arrives (the protocol wire
// format encodes individual tick updates as separate keyed attributes).
func (p *UniswapV3State) DeltaTransition(delta poolstate.Delta, tokens []common.Address, balances map[common.Address]*big.Int) error {
	if v, ok := delta.Attributes["sqrt_price_x96"]; ok {
		if len(v) == 0 || len(v) > 32 {
			return &poolstate.TransitionError{Msg: "malformed sqrt_price_x96"}
		}
		p.SqrtPriceX96 = new(big.Int).SetBytes(v)
	}
	if v, ok := delta.Attributes["liquidity"]; ok {
		if len(v) == 0 || len(v) > 32 {
			return &poolstate.TransitionError{Msg: "malformed liquidity"}
		}
		p.Liquidity = new(big.Int).SetBytes(v)
	}
	if v, ok := delta.Attributes["tick"]; ok {
		p.Tick = i24BEBytesToI32(v)
	}
	return nil
}

func (p *UniswapV3State) CloneBox() poolstate.ProtocolSim {
	return &UniswapV3State{
		Token0: p.Token0, Token1: p.Token1,
		Decimals0: p.Decimals0, Decimals1: p.Decimals1,
		SqrtPriceX96: new(big.Int).Set(p.SqrtPriceX96),
		Liquidity:    new(big.Int).Set(p.Liquidity),
		Tick:         p.Tick,
		TickSpacing:  p.TickSpacing,
		FeePips:      p.FeePips,
		Ticks:        p.Ticks,
	}
}

var _ poolstate.ProtocolSim = (*UniswapV3State)(nil)

package poolstate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/erc20overlay"
	"github.com/tychosim/vmsim/substrate"
)

// maxBalance is the synthetic "huge balance" seeded onto the sell token
// before probing limits/prices, matching the original's MAX_BALANCE
// constant (2**96, large enough to never itself be the binding
// constraint for any real pool).
var maxBalance = new(big.Int).Lsh(big.NewInt(1), 96)

// EVMPoolState is the VM-backed ProtocolSim: one object per pool,
// bound to a shared adapter contract and storage substrate. Grounded on
// original_source/tycho-swap/src/evm/protocol/vm/state.rs's
// EVMPoolState<D>.
type EVMPoolState struct {
	ID     [32]byte
	Tokens []common.Address
	Block  substrate.BlockHeader

	// Balances is the component-level token->balance map; when
	// non-empty it takes precedence over ContractBalances (invariant
	// in spec.md §3).
	Balances         map[common.Address]*big.Int
	ContractBalances map[common.Address]map[common.Address]*big.Int
	BalanceOwner     *common.Address

	SpotPrices   map[pairKey]float64
	Capabilities CapabilitySet

	BlockLastingOverwrites substrate.Overwrites
	InvolvedContracts      map[common.Address]struct{}
	TokenStorageSlots      map[common.Address]erc20overlay.Slots
	ManualUpdates          bool

	Adapter AdapterAPI
	DB      substrate.DBRef
}

// AdapterAPI is the set of adapter entry points EVMPoolState drives.
// *AdapterContract is the production implementation (evaluated through
// the EVM host); tests substitute a fake to exercise the overlay,
// limit-clamping, and cloning bookkeeping without a real adapter
// bytecode fixture.
type AdapterAPI interface {
	Price(poolID [32]byte, tokenIn, tokenOut common.Address, amountSpecifiers []*big.Int, block uint64, db substrate.DBRef) ([]float64, error)
	GetLimits(poolID [32]byte, sell, buy common.Address, block uint64, db substrate.DBRef) (*big.Int, *big.Int, error)
	GetCapabilities(poolID [32]byte, t0, t1 common.Address, block uint64, db substrate.DBRef) (CapabilitySet, error)
	Swap(poolID [32]byte, sell, buy common.Address, sellAmount *big.Int, block uint64, db substrate.DBRef) (*SwapResult, error)
}

var _ AdapterAPI = (*AdapterContract)(nil)

// adapterAddress returns the adapter address when Adapter is an
// *AdapterContract; used by overlay construction which needs the
// adapter address to seed the allowance overlay.
func (p *EVMPoolState) adapterAddress() common.Address {
	if ac, ok := p.Adapter.(*AdapterContract); ok {
		return ac.Address
	}
	return common.Address{}
}

type pairKey struct {
	base, quote common.Address
}

// externalAccount is the synthetic caller used to hold spoofed
// sell-token balances/allowances during price/limit/swap probes.
var externalAccount = common.HexToAddress("0x00000000000000000000000000000000000ea0")

// Fee is not derivable generically for VM pools (the original marks
// this todo!() — no adapter entry point reports a scalar fee). Callers
// needing a fee should read it from a protocol-specific static
// attribute instead.
func (p *EVMPoolState) Fee() (float64, error) {
	return 0, &FatalError{Msg: "fee is not available for VM-backed pools"}
}

// SpotPrice looks up the cached price; a miss is fatal (the caller must
// have run SetSpotPrices first).
func (p *EVMPoolState) SpotPrice(base, quote common.Address) (float64, error) {
	v, ok := p.SpotPrices[pairKey{base, quote}]
	if !ok {
		return 0, &FatalError{Msg: "spot price not cached for pair " + base.Hex() + "/" + quote.Hex()}
	}
	return v, nil
}

// SetSpotPrices implements spec.md §4.4's set_spot_prices: for every
// ordered pair of pool tokens, seed a huge sell-side overlay, compute
// the sell limit, call adapter.Price at limit/100, scale by decimals
// unless ScaledPrice is set, and cache.
func (p *EVMPoolState) SetSpotPrices(decimals map[common.Address]int) error {
	if !p.Capabilities.Has(PriceFunction) {
		return &FatalError{Msg: "pool lacks PriceFunction capability"}
	}
	if p.SpotPrices == nil {
		p.SpotPrices = make(map[pairKey]float64)
	}

	for _, base := range p.Tokens {
		for _, quote := range p.Tokens {
			if base == quote {
				continue
			}
			overlay, err := p.getOverwrites([2]common.Address{base, quote}, maxBalance)
			if err != nil {
				return err
			}
			odb := substrate.NewOverriddenDB(p.DB, overlay)

			sellLimit, _, err := p.Adapter.GetLimits(p.ID, base, quote, p.Block.Number, odb)
			if err != nil {
				return err
			}

			reference := new(big.Int).Div(sellLimit, big.NewInt(100))
			prices, err := p.Adapter.Price(p.ID, base, quote, []*big.Int{reference}, p.Block.Number, odb)
			if err != nil {
				return err
			}
			if len(prices) == 0 {
				return &FatalError{Msg: "adapter returned no price elements"}
			}
			raw := prices[0]

			price := raw
			if !p.Capabilities.Has(ScaledPrice) {
				dSell, ok1 := decimals[base]
				dBuy, ok2 := decimals[quote]
				if !ok1 || !ok2 {
					return &FatalError{Msg: "missing token decimals for pair " + base.Hex() + "/" + quote.Hex()}
				}
				price = raw * pow10(dSell-dBuy)
			}

			p.SpotPrices[pairKey{base, quote}] = price
		}
	}
	return nil
}

func pow10(n int) float64 {
	if n == 0 {
		return 1
	}
	v := 1.0
	if n > 0 {
		for i := 0; i < n; i++ {
			v *= 10
		}
		return v
	}
	for i := 0; i < -n; i++ {
		v *= 10
	}
	return 1 / v
}

// GetLimits returns the adapter's (sell_limit, buy_limit) under an
// identity (non-huge-balance) overlay.
func (p *EVMPoolState) GetLimits(sell, buy common.Address) (*big.Int, *big.Int, error) {
	overlay, err := p.getOverwrites([2]common.Address{sell, buy}, big.NewInt(0))
	if err != nil {
		return nil, nil, err
	}
	odb := substrate.NewOverriddenDB(p.DB, overlay)
	return p.Adapter.GetLimits(p.ID, sell, buy, p.Block.Number, odb)
}

// GetAmountOut implements spec.md §4.4's get_amount_out algorithm in
// full, including the HardLimits clamp-and-flag behaviour (property 3)
// and the overlay-isolation guarantee that the receiver is never
// mutated (property 5).
func (p *EVMPoolState) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (*GetAmountOutResult, error) {
	overlay, err := p.getOverwrites([2]common.Address{tokenIn, tokenOut}, maxBalance)
	if err != nil {
		return nil, err
	}
	odbForLimit := substrate.NewOverriddenDB(p.DB, overlay)
	sellLimit, _, err := p.Adapter.GetLimits(p.ID, tokenIn, tokenOut, p.Block.Number, odbForLimit)
	if err != nil {
		return nil, err
	}

	sellAmountRespectingLimit := new(big.Int).Set(amountIn)
	exceedsLimit := false
	if p.Capabilities.Has(HardLimits) && amountIn.Cmp(sellLimit) > 0 {
		sellAmountRespectingLimit = new(big.Int).Set(sellLimit)
		exceedsLimit = true
	}

	overlayWithLimit, err := p.getOverwrites([2]common.Address{tokenIn, tokenOut}, sellLimit)
	if err != nil {
		return nil, err
	}
	complete := overlay.Clone()
	complete.Merge(overlayWithLimit)
	odb := substrate.NewOverriddenDB(p.DB, complete)

	swapRes, err := p.Adapter.Swap(p.ID, tokenIn, tokenOut, sellAmountRespectingLimit, p.Block.Number, odb)
	if err != nil {
		return nil, err
	}

	clone := p.CloneBox().(*EVMPoolState)
	if clone.BlockLastingOverwrites == nil {
		clone.BlockLastingOverwrites = substrate.Overwrites{}
	}
	for addr, upd := range swapRes.StateChanges {
		if upd.Storage == nil {
			continue
		}
		existing, ok := clone.BlockLastingOverwrites[addr]
		if !ok {
			existing = make(map[common.Hash]common.Hash, len(upd.Storage))
			clone.BlockLastingOverwrites[addr] = existing
		}
		for slot, val := range upd.Storage {
			existing[slot] = val
		}
	}

	if swapRes.PriceAfter != 0 {
		clone.SpotPrices[pairKey{tokenIn, tokenOut}] = swapRes.PriceAfter
		clone.SpotPrices[pairKey{tokenOut, tokenIn}] = 1 / swapRes.PriceAfter
	}

	gasUsed := uint64(0)
	if swapRes.GasUsed != nil {
		gasUsed = swapRes.GasUsed.Uint64()
	}
	result := &GetAmountOutResult{AmountOut: swapRes.Received, GasUsed: gasUsed, NewState: clone}

	if exceedsLimit {
		return nil, &InvalidInputError{
			Msg:        sellExceedsLimitMsg(sellLimit.String()),
			BestEffort: result,
		}
	}
	return result, nil
}

// DeltaTransition implements spec.md §4.4's delta_transition: gated by
// update_marker when ManualUpdates is set, otherwise always applied.
func (p *EVMPoolState) DeltaTransition(delta Delta, tokens []common.Address, balances map[common.Address]*big.Int) error {
	if p.ManualUpdates {
		marker, ok := delta.Attributes["update_marker"]
		if !ok || len(marker) == 0 || marker[0] == 0 {
			return nil
		}
	}
	return p.updatePoolState(tokens, balances)
}

// updatePoolState matches the original's update_pool_state: clear temp
// storage and block-lasting overwrites, apply the new balances to
// whichever balance map is authoritative, and recompute spot prices.
func (p *EVMPoolState) updatePoolState(tokens []common.Address, balances map[common.Address]*big.Int) error {
	if store, ok := p.DB.(interface{ ClearTempStorage() }); ok {
		store.ClearTempStorage()
	}
	p.BlockLastingOverwrites = substrate.Overwrites{}

	if len(p.Balances) > 0 {
		for tok, bal := range balances {
			p.Balances[tok] = bal
		}
	} else {
		owner := p.contractBalanceOwner()
		if p.ContractBalances[owner] == nil {
			p.ContractBalances[owner] = make(map[common.Address]*big.Int)
		}
		for tok, bal := range balances {
			p.ContractBalances[owner][tok] = bal
		}
	}

	decimals := make(map[common.Address]int, len(tokens))
	for _, t := range tokens {
		decimals[t] = 18 // resolved by the caller in the full pipeline; 18 is the common default
	}
	return p.SetSpotPrices(decimals)
}

func (p *EVMPoolState) contractBalanceOwner() common.Address {
	if p.BalanceOwner != nil {
		return *p.BalanceOwner
	}
	return common.BytesToAddress(p.ID[:])
}

// CloneBox returns a deep copy for "what-if" composition.
func (p *EVMPoolState) CloneBox() ProtocolSim {
	cp := &EVMPoolState{
		ID:            p.ID,
		Tokens:        append([]common.Address{}, p.Tokens...),
		Block:         p.Block,
		Balances:      cloneBalanceMap(p.Balances),
		BalanceOwner:  p.BalanceOwner,
		Capabilities:  p.Capabilities,
		ManualUpdates: p.ManualUpdates,
		Adapter:       p.Adapter,
		DB:            p.DB,
	}
	cp.ContractBalances = make(map[common.Address]map[common.Address]*big.Int, len(p.ContractBalances))
	for addr, m := range p.ContractBalances {
		cp.ContractBalances[addr] = cloneBalanceMap(m)
	}
	cp.SpotPrices = make(map[pairKey]float64, len(p.SpotPrices))
	for k, v := range p.SpotPrices {
		cp.SpotPrices[k] = v
	}
	cp.BlockLastingOverwrites = p.BlockLastingOverwrites.Clone()
	cp.InvolvedContracts = make(map[common.Address]struct{}, len(p.InvolvedContracts))
	for a := range p.InvolvedContracts {
		cp.InvolvedContracts[a] = struct{}{}
	}
	cp.TokenStorageSlots = make(map[common.Address]erc20overlay.Slots, len(p.TokenStorageSlots))
	for a, s := range p.TokenStorageSlots {
		cp.TokenStorageSlots[a] = s
	}
	return cp
}

func cloneBalanceMap(m map[common.Address]*big.Int) map[common.Address]*big.Int {
	cp := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		cp[k] = new(big.Int).Set(v)
	}
	return cp
}

var _ ProtocolSim = (*EVMPoolState)(nil)

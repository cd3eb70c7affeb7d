package poolstate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/erc20overlay"
	"github.com/tychosim/vmsim/substrate"
)

// getOverwrites merges p.BlockLastingOverwrites with a fresh token
// overlay for pair (tokens[0] = sell, tokens[1] = buy) seeding maxAmount
// as the sell token's balance and allowance, as spec.md §4.4's
// get_overwrites describes.
func (p *EVMPoolState) getOverwrites(tokens [2]common.Address, maxAmount *big.Int) (substrate.Overwrites, error) {
	tokenOverlay, err := p.getTokenOverwrites(tokens[0], maxAmount)
	if err != nil {
		return nil, err
	}
	out := p.BlockLastingOverwrites.Clone()
	out.Merge(tokenOverlay)
	return out, nil
}

// getTokenOverwrites builds the ERC-20 balance/allowance overlay for
// sellToken: unless TokenBalanceIndependent is set, it also seeds the
// component/contract balance overlay (get_balance_overwrites).
func (p *EVMPoolState) getTokenOverwrites(sellToken common.Address, maxAmount *big.Int) (substrate.Overwrites, error) {
	merged := substrate.Overwrites{}

	if !p.Capabilities.Has(TokenBalanceIndependent) {
		merged.Merge(p.getBalanceOverwrites())
	}

	slots, ok := p.TokenStorageSlots[sellToken]
	if !ok {
		slots = erc20overlay.DefaultSlots
	}
	factory := erc20overlay.NewOverwriteFactory(sellToken, slots)
	amt, _ := uint256.FromBig(maxAmount)
	factory.SetBalance(amt, externalAccount)
	factory.SetAllowance(amt, p.adapterAddress(), externalAccount)
	merged.Merge(factory.Build())

	return merged, nil
}

// getBalanceOverwrites matches the original's get_balance_overwrites:
// seeds the component-level balances (keyed by BalanceOwner, or the
// pool id itself when BalanceOwner is unset) and then, for
// each tracked contract, its own per-contract balances — which, per the
// original's comment, overwrite the component balances when both are
// present for the same token/contract.
func (p *EVMPoolState) getBalanceOverwrites() substrate.Overwrites {
	out := substrate.Overwrites{}

	owner := p.contractBalanceOwner()
	for token, bal := range p.Balances {
		slots, ok := p.TokenStorageSlots[token]
		if !ok {
			slots = erc20overlay.DefaultSlots
		}
		factory := erc20overlay.NewOverwriteFactory(token, slots)
		amt, _ := uint256.FromBig(bal)
		factory.SetBalance(amt, owner)
		out.Merge(factory.Build())
	}

	for contract, balances := range p.ContractBalances {
		for token, bal := range balances {
			slots, ok := p.TokenStorageSlots[token]
			if !ok {
				slots = erc20overlay.DefaultSlots
			}
			factory := erc20overlay.NewOverwriteFactory(token, slots)
			amt, _ := uint256.FromBig(bal)
			factory.SetBalance(amt, contract)
			out.Merge(factory.Build())
		}
	}

	return out
}

// Package erc20overlay generates storage-slot overrides that spoof
// ERC-20 balances and allowances for arbitrary holders/spenders, and
// discovers the balance/allowance slot indices for non-standard token
// layouts via brute-force probing against the EVM host.
package erc20overlay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/substrate"
)

// Compiler selects the storage-packing convention: Solidity packs
// balances as keccak256(addr ∥ slot) and allowances as
// keccak256(spender ∥ keccak256(owner ∥ slot)); Vyper reverses the
// packing order of both.
type Compiler int

const (
	Solidity Compiler = iota
	Vyper
)

// Slots names the storage slot indices used for a token's mapping
// variables plus which compiler's packing convention applies.
// Default is slot 0 for balances, slot 1 for allowances, Solidity
// packing — the common case for a standard Solidity ERC-20.
type Slots struct {
	BalanceSlot   uint64
	AllowanceSlot uint64
	Compiler      Compiler
}

// DefaultSlots is ERC20Slots(0, 1) with Solidity packing, matching the
// original's default token_storage_slots entry.
var DefaultSlots = Slots{BalanceSlot: 0, AllowanceSlot: 1, Compiler: Solidity}

// balanceKey computes the storage key for balances[holder] at
// BalanceSlot, honouring the compiler's packing order.
func balanceKey(holder common.Address, slots Slots) common.Hash {
	slotWord := common.BigToHash(new(uint256.Int).SetUint64(slots.BalanceSlot).ToBig())
	var buf []byte
	if slots.Compiler == Vyper {
		buf = append(buf, slotWord.Bytes()...)
		buf = append(buf, common.LeftPadBytes(holder.Bytes(), 32)...)
	} else {
		buf = append(buf, common.LeftPadBytes(holder.Bytes(), 32)...)
		buf = append(buf, slotWord.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

// allowanceKey computes the storage key for allowance[owner][spender]
// at AllowanceSlot: keccak256(spender ∥ keccak256(owner ∥ slot)) for
// Solidity, packing order reversed for Vyper.
func allowanceKey(owner, spender common.Address, slots Slots) common.Hash {
	slotWord := common.BigToHash(new(uint256.Int).SetUint64(slots.AllowanceSlot).ToBig())

	if slots.Compiler == Vyper {
		inner := crypto.Keccak256Hash(append(
			slotWord.Bytes(),
			common.LeftPadBytes(owner.Bytes(), 32)...,
		))
		return crypto.Keccak256Hash(append(
			inner.Bytes(),
			common.LeftPadBytes(spender.Bytes(), 32)...,
		))
	}

	inner := crypto.Keccak256Hash(append(
		common.LeftPadBytes(owner.Bytes(), 32),
		slotWord.Bytes()...,
	))
	return crypto.Keccak256Hash(append(
		common.LeftPadBytes(spender.Bytes(), 32),
		inner.Bytes()...,
	))
}

// OverwriteFactory builds an Overwrites map for a single token address,
// accumulating set_balance/set_allowance writes before being merged
// into a wider overlay.
type OverwriteFactory struct {
	token common.Address
	slots Slots
	writes map[common.Hash]common.Hash
}

// NewOverwriteFactory creates a factory targeting token with the given
// slot layout.
func NewOverwriteFactory(token common.Address, slots Slots) *OverwriteFactory {
	return &OverwriteFactory{token: token, slots: slots, writes: make(map[common.Hash]common.Hash)}
}

// SetBalance schedules a write of amount to balances[holder].
func (f *OverwriteFactory) SetBalance(amount *uint256.Int, holder common.Address) {
	f.writes[balanceKey(holder, f.slots)] = common.Hash(amount.Bytes32())
}

// SetAllowance schedules a write of amount to allowance[owner][spender].
func (f *OverwriteFactory) SetAllowance(amount *uint256.Int, spender, owner common.Address) {
	f.writes[allowanceKey(owner, spender, f.slots)] = common.Hash(amount.Bytes32())
}

// Build returns the accumulated writes as a single-address Overwrites
// map ready for merging.
func (f *OverwriteFactory) Build() substrate.Overwrites {
	cp := make(map[common.Hash]common.Hash, len(f.writes))
	for k, v := range f.writes {
		cp[k] = v
	}
	return substrate.Overwrites{f.token: cp}
}

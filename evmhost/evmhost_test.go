package evmhost

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/substrate"
)

// sloadSlot0Bytecode returns storage slot 0 verbatim: SLOAD, MSTORE,
// RETURN. Used to confirm the host actually hydrates existing storage
// into the replay StateDB before execution.
var sloadSlot0Bytecode = []byte{
	0x60, 0x00, // PUSH1 0x00
	0x54,       // SLOAD
	0x60, 0x00, // PUSH1 0x00
	0x52,       // MSTORE
	0x60, 0x20, // PUSH1 0x20
	0x60, 0x00, // PUSH1 0x00
	0xf3, // RETURN
}

// TestSimulate_HydratesExistingStorage confirms a call against an
// account with pre-existing storage sees that storage: a SLOAD of slot
// 0 must return the value already present in the substrate, not zero.
func TestSimulate_HydratesExistingStorage(t *testing.T) {
	addr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	slot0 := common.Hash{}
	want := common.BigToHash(big.NewInt(42))

	s := substrate.NewPreCachedStore()
	s.InitAccount(addr, substrate.AccountInfo{Balance: new(uint256.Int), Code: sloadSlot0Bytecode},
		map[common.Hash]common.Hash{slot0: want}, false)
	s.SetBlock(substrate.BlockHeader{Number: 1})

	h := NewHost(big.NewInt(1))
	res, err := h.Simulate(Parameters{
		To:          addr,
		BlockNumber: 1,
		GasLimit:    DefaultGasLimit,
	}, s, []common.Address{addr})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := common.BytesToHash(res.Output)
	if got != want {
		t.Fatalf("want slot0=%v read back through SLOAD, got %v", want, got)
	}
}

// TestDiffTracker_ElidesUnchangedStorage is property 7: the emitted
// diff contains no storage entry where present == original, and no
// storage map at all for an account with zero changed slots.
func TestDiffTracker_ElidesUnchangedStorage(t *testing.T) {
	d := newDiffTracker()
	var addr common.Address
	var slot common.Hash

	// A no-op write (prev == new) must not appear in the tracked diff.
	d.onStorageChange(addr, slot, slot, slot)
	if e, ok := d.accounts[addr]; ok && len(e.storage) != 0 {
		t.Fatalf("want no tracked storage change for a no-op write, got %v", e.storage)
	}

	var other common.Hash
	other[0] = 1
	d.onStorageChange(addr, slot, slot, other)
	e, ok := d.accounts[addr]
	if !ok || len(e.storage) != 1 {
		t.Fatalf("want exactly one tracked storage change, got %v", e)
	}
}

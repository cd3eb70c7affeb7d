package erc20overlay

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/evmhost"
	"github.com/tychosim/vmsim/substrate"
)

// sstoreFixedSlotBytecode unconditionally SSTOREs 1 into slot,
// standing in for a Solidity ERC-20's approve write without hand-coding
// calldata decoding in raw bytecode.
func sstoreFixedSlotBytecode(slot common.Hash) []byte {
	code := make([]byte, 0, 68)
	code = append(code, 0x7f) // PUSH32
	code = append(code, common.BigToHash(big.NewInt(1)).Bytes()...)
	code = append(code, 0x7f) // PUSH32
	code = append(code, slot.Bytes()...)
	code = append(code, 0x55) // SSTORE
	code = append(code, 0x00) // STOP
	return code
}

// TestDiscoverAllowanceSlot_ReadsBackThroughStateDiff confirms
// discoverAllowanceSlot sees the approve call's write: Simulate never
// commits, so the candidate slot must be re-read through the returned
// state diff, not the original db.
func TestDiscoverAllowanceSlot_ReadsBackThroughStateDiff(t *testing.T) {
	token := common.HexToAddress("0x7777777777777777777777777777777777777777")
	const wantSlot = uint64(3)
	key := allowanceKey(probeHolder, probeSpender, Slots{AllowanceSlot: wantSlot, Compiler: Solidity})

	s := substrate.NewPreCachedStore()
	s.InitAccount(token, substrate.AccountInfo{Balance: new(uint256.Int), Code: sstoreFixedSlotBytecode(key)}, nil, false)
	s.SetBlock(substrate.BlockHeader{Number: 1})

	host := evmhost.NewHost(big.NewInt(1))
	idx, ok, err := discoverAllowanceSlot(host, s, token, 1, Solidity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("want allowance slot discovered")
	}
	if idx != wantSlot {
		t.Fatalf("want slot %d, got %d", wantSlot, idx)
	}
}

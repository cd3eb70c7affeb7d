package erc20overlay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/evmhost"
	"github.com/tychosim/vmsim/substrate"
)

// maxProbedSlots bounds the brute-force search: beyond this many
// candidate slot indices, the token is declared unsupported.
const maxProbedSlots = 32

// probeHolder/probeSpender are throwaway addresses used only
// to disambiguate storage slots during discovery; they never need to
// hold real value.
var (
	probeHolder  = common.HexToAddress("0x00000000000000000000000000000000000b01")
	probeSpender = common.HexToAddress("0x00000000000000000000000000000000000b02")
)

// DiscoveredSlots is the outcome of brute_force_slots: the winning slot
// indices and compiler for a token, or an error if neither convention
// matched within maxProbedSlots.
type DiscoveredSlots struct {
	Slots Slots
}

// approveSelector is keccak256("approve(address,uint256)")[:4].
var approveSelector = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]

// BruteForceSlots discovers the balance and allowance slot indices for
// token by probing the EVM host. Per spec.md §4.3: for each candidate
// allowance slot index, synthesise an approve(spender, 1) call through
// the host with a holder/owner alias, then re-read the candidate slot;
// the first index whose storage matches the probed value wins. A
// parallel routine finds the balance slot by overriding a candidate
// slot and confirming the token's balanceOf call reports the expected
// balance. Both compilers are probed in turn.
func BruteForceSlots(host *evmhost.Host, db substrate.DBRef, token common.Address, block uint64) (DiscoveredSlots, error) {
	balanceOfABI, err := abi.JSON(strings.NewReader(`[{"name":"balanceOf","type":"function","inputs":[{"name":"who","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`))
	if err != nil {
		return DiscoveredSlots{}, err
	}

	for _, compiler := range []Compiler{Solidity, Vyper} {
		allowanceSlot, ok, err := discoverAllowanceSlot(host, db, token, block, compiler)
		if err != nil {
			return DiscoveredSlots{}, err
		}
		if !ok {
			continue
		}
		balanceSlot, ok, err := discoverBalanceSlot(host, db, token, block, compiler, balanceOfABI)
		if err != nil {
			return DiscoveredSlots{}, err
		}
		if !ok {
			continue
		}
		return DiscoveredSlots{Slots: Slots{
			BalanceSlot:   balanceSlot,
			AllowanceSlot: allowanceSlot,
			Compiler:      compiler,
		}}, nil
	}

	return DiscoveredSlots{}, fmt.Errorf("erc20overlay: token %s does not match a known storage layout", token.Hex())
}

// discoverAllowanceSlot issues an approve(spender, 1) call against the
// live token (through the EVM host, against whatever code/storage db
// already has for it) then scans candidate slot indices for one whose
// computed allowance key now reads back as 1.
func discoverAllowanceSlot(host *evmhost.Host, db substrate.DBRef, token common.Address, block uint64, compiler Compiler) (uint64, bool, error) {
	calldata := append(append([]byte{}, approveSelector...), common.LeftPadBytes(probeSpender.Bytes(), 32)...)
	calldata = append(calldata, common.LeftPadBytes(uint256.NewInt(1).Bytes(), 32)...)

	res, err := host.Simulate(evmhost.Parameters{
		Caller:      probeHolder,
		To:          token,
		Calldata:    calldata,
		BlockNumber: block,
		GasLimit:    evmhost.DefaultGasLimit,
	}, db, []common.Address{probeHolder, token})
	if err != nil {
		return 0, false, nil // approve revert just means this isn't a matching layout
	}

	// Simulate never commits: read the approve's write back through an
	// OverriddenDB built from the returned state diff instead of the
	// original, unmutated db.
	overrides := substrate.Overwrites{}
	if upd, ok := res.StateDiff[token]; ok && len(upd.Storage) > 0 {
		overrides[token] = upd.Storage
	}
	odb := substrate.NewOverriddenDB(db, overrides)

	for idx := uint64(0); idx < maxProbedSlots; idx++ {
		key := allowanceKey(probeHolder, probeSpender, Slots{AllowanceSlot: idx, Compiler: compiler})
		val, err := odb.Storage(token, key)
		if err != nil {
			return 0, false, err
		}
		if val == common.BigToHash(uint256.NewInt(1).ToBig()) {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// discoverBalanceSlot overrides each candidate balance slot to a known
// value and confirms the token's balanceOf view reflects it.
func discoverBalanceSlot(host *evmhost.Host, db substrate.DBRef, token common.Address, block uint64, compiler Compiler, balanceOfABI abi.ABI) (uint64, bool, error) {
	const probeAmount = 0x1234
	calldata, err := balanceOfABI.Pack("balanceOf", probeHolder)
	if err != nil {
		return 0, false, err
	}

	for idx := uint64(0); idx < maxProbedSlots; idx++ {
		key := balanceKey(probeHolder, Slots{BalanceSlot: idx, Compiler: compiler})
		overrides := substrate.Overwrites{
			token: {key: common.BigToHash(uint256.NewInt(probeAmount).ToBig())},
		}
		odb := substrate.NewOverriddenDB(db, overrides)

		res, err := host.Simulate(evmhost.Parameters{
			Caller:      probeHolder,
			To:          token,
			Calldata:    calldata,
			BlockNumber: block,
			GasLimit:    evmhost.DefaultGasLimit,
		}, odb, []common.Address{probeHolder, token})
		if err != nil {
			continue
		}
		var out uint256.Int
		out.SetBytes(res.Output)
		if out.Uint64() == probeAmount {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

package poolstate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/evmhost"
	"github.com/tychosim/vmsim/substrate"
)

// AdapterContract is the bound handle spec.md §9's "Adapter handle
// ownership" design note describes: it bundles the adapter address, a
// shared EVM host, and is shared across every pool of the same
// protocol. It is safe to copy by pointer; all state it touches lives
// in the substrate, not on the struct itself.
type AdapterContract struct {
	Address common.Address
	Host    *evmhost.Host
}

// NewAdapterContract derives the deterministic adapter address from the
// protocol name per spec.md §3: "first 40 hex chars of the hex-encoded
// protocol name, zero-padded right" — i.e. the protocol name's ASCII
// bytes, truncated/padded to 20 bytes.
func NewAdapterContract(protocolName string, host *evmhost.Host) *AdapterContract {
	raw := []byte(protocolName)
	addrBytes := make([]byte, common.AddressLength)
	n := copy(addrBytes, raw)
	_ = n
	return &AdapterContract{Address: common.BytesToAddress(addrBytes), Host: host}
}

// entry-point selectors. The adapter ABI (spec.md §6) defines four
// entry points sharing the same leading argument shape
// (pool_id, token_in, token_out, [amount_specifier], block_number, overrides);
// neither `block_number` nor `overrides` crosses the ABI boundary itself:
// the block number goes into the host call's block context, and the
// overrides are applied as an OverriddenDB wrapper around the DB-ref
// passed to Simulate.
var (
	priceSelector        = crypto.Keccak256([]byte("price(bytes32,address,address,uint256[])"))[:4]
	getLimitsSelector    = crypto.Keccak256([]byte("getLimits(bytes32,address,address)"))[:4]
	getCapabilitiesSel   = crypto.Keccak256([]byte("getCapabilities(bytes32,address,address)"))[:4]
	swapSelector         = crypto.Keccak256([]byte("swap(bytes32,address,address,bool,uint256)"))[:4]
)

var uint256ArrayType, addressType, uint256Type, bytes32Type, boolType abi.Type

func init() {
	uint256ArrayType, _ = abi.NewType("uint256[]", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	boolType, _ = abi.NewType("bool", "", nil)
}

// Price calls the adapter's price entry point for amountSpecifiers and
// returns one float per element, as spec.md §6 documents.
func (a *AdapterContract) Price(poolID [32]byte, tokenIn, tokenOut common.Address, amountSpecifiers []*big.Int, block uint64, db substrate.DBRef) ([]float64, error) {
	args := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: uint256ArrayType}}
	packed, err := args.Pack(poolID, tokenIn, tokenOut, amountSpecifiers)
	if err != nil {
		return nil, &FatalError{Msg: "pack price args: " + err.Error()}
	}
	calldata := append(append([]byte{}, priceSelector...), packed...)

	res, err := a.Host.Simulate(evmhost.Parameters{
		Caller:      common.Address{},
		To:          a.Address,
		Calldata:    calldata,
		BlockNumber: block,
		GasLimit:    evmhost.DefaultGasLimit,
	}, db, []common.Address{a.Address})
	if err != nil {
		return nil, err
	}

	out := abi.Arguments{{Type: uint256ArrayType}}
	vals, err := out.Unpack(res.Output)
	if err != nil || len(vals) == 0 {
		return nil, &FatalError{Msg: "unpack price result"}
	}
	raw, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, &FatalError{Msg: "unexpected price result shape"}
	}
	prices := make([]float64, len(raw))
	for i, r := range raw {
		f := new(big.Float).SetInt(r)
		v, _ := f.Float64()
		prices[i] = v / 1e18
	}
	return prices, nil
}

// GetLimits calls the adapter's getLimits entry point.
func (a *AdapterContract) GetLimits(poolID [32]byte, sell, buy common.Address, block uint64, db substrate.DBRef) (*big.Int, *big.Int, error) {
	args := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}}
	packed, err := args.Pack(poolID, sell, buy)
	if err != nil {
		return nil, nil, &FatalError{Msg: "pack get_limits args: " + err.Error()}
	}
	calldata := append(append([]byte{}, getLimitsSelector...), packed...)

	res, err := a.Host.Simulate(evmhost.Parameters{
		To:          a.Address,
		Calldata:    calldata,
		BlockNumber: block,
		GasLimit:    evmhost.DefaultGasLimit,
	}, db, []common.Address{a.Address})
	if err != nil {
		return nil, nil, err
	}

	out := abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
	vals, err := out.Unpack(res.Output)
	if err != nil || len(vals) != 2 {
		return nil, nil, &FatalError{Msg: "unpack get_limits result"}
	}
	sellLimit, _ := vals[0].(*big.Int)
	buyLimit, _ := vals[1].(*big.Int)
	return sellLimit, buyLimit, nil
}

// GetCapabilities calls the adapter's getCapabilities entry point and
// decodes the returned bitset.
func (a *AdapterContract) GetCapabilities(poolID [32]byte, t0, t1 common.Address, block uint64, db substrate.DBRef) (CapabilitySet, error) {
	args := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}}
	packed, err := args.Pack(poolID, t0, t1)
	if err != nil {
		return 0, &FatalError{Msg: "pack get_capabilities args: " + err.Error()}
	}
	calldata := append(append([]byte{}, getCapabilitiesSel...), packed...)

	res, err := a.Host.Simulate(evmhost.Parameters{
		To:          a.Address,
		Calldata:    calldata,
		BlockNumber: block,
		GasLimit:    evmhost.DefaultGasLimit,
	}, db, []common.Address{a.Address})
	if err != nil {
		return 0, err
	}

	out := abi.Arguments{{Type: uint256Type}}
	vals, err := out.Unpack(res.Output)
	if err != nil || len(vals) != 1 {
		return 0, &FatalError{Msg: "unpack get_capabilities result"}
	}
	raw, _ := vals[0].(*big.Int)
	if raw == nil {
		return 0, nil
	}
	return CapabilitySet(raw.Uint64()), nil
}

// SwapResult is the adapter's swap entry point outcome.
type SwapResult struct {
	Received     *big.Int
	GasUsed      *big.Int
	PriceAfter   float64
	StateChanges map[common.Address]substrate.StateUpdate
}

// Swap calls the adapter's swap entry point and translates the
// resulting EVM host state diff into per-address StateUpdate entries.
// Only received_amount and gas_used are unpacked from the call output:
// PriceAfter is always 0, so EVMPoolState.GetAmountOut leaves the
// clone's cached spot prices as they were.
func (a *AdapterContract) Swap(poolID [32]byte, sell, buy common.Address, sellAmount *big.Int, block uint64, db substrate.DBRef) (*SwapResult, error) {
	args := abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: addressType}, {Type: boolType}, {Type: uint256Type}}
	packed, err := args.Pack(poolID, sell, buy, false, sellAmount)
	if err != nil {
		return nil, &FatalError{Msg: "pack swap args: " + err.Error()}
	}
	calldata := append(append([]byte{}, swapSelector...), packed...)

	amt, _ := uint256.FromBig(sellAmount)
	res, err := a.Host.Simulate(evmhost.Parameters{
		To:          a.Address,
		Calldata:    calldata,
		Value:       nil,
		BlockNumber: block,
		GasLimit:    evmhost.DefaultGasLimit,
	}, db, []common.Address{a.Address, sell, buy})
	if err != nil {
		return nil, err
	}
	_ = amt

	out := abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
	vals, err := out.Unpack(res.Output)
	if err != nil || len(vals) != 2 {
		return nil, &FatalError{Msg: "unpack swap result"}
	}
	received, _ := vals[0].(*big.Int)
	gasUsed, _ := vals[1].(*big.Int)

	changes := make(map[common.Address]substrate.StateUpdate, len(res.StateDiff))
	for addr, upd := range res.StateDiff {
		changes[addr] = upd
	}

	return &SwapResult{
		Received:     received,
		GasUsed:      gasUsed,
		PriceAfter:   0,
		StateChanges: changes,
	}, nil
}

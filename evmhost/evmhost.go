// Package evmhost is the simulator's EVM execution host: a stateless,
// single-threaded evaluator that replays a call against a substrate
// snapshot without committing any state, and extracts a state diff via
// go-ethereum's tracing hooks.
package evmhost

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"

	"github.com/tychosim/vmsim/substrate"
)

// DefaultGasLimit matches spec.md §4.2 step 1: default gas limit of
// 8,000,000 when the caller doesn't specify one.
const DefaultGasLimit uint64 = 8_000_000

// Parameters is the (caller, to, calldata, value, block, timestamp,
// gas_limit, transient_storage) tuple of spec.md §4.2 step 1.
type Parameters struct {
	Caller           common.Address
	To               common.Address
	Calldata         []byte
	Value            *uint256.Int
	BlockNumber      uint64
	Timestamp        uint64
	GasLimit         uint64
	TransientStorage map[common.Address]map[common.Hash]common.Hash
	Trace            bool
}

// SimulationResult is the host's successful outcome: raw call output,
// a state diff keyed by touched address, and the gas consumed.
// TransientStorage is always empty pending a substrate upgrade (see
// SPEC_FULL.md §9 / spec.md §9's open question).
type SimulationResult struct {
	Output           []byte
	StateDiff        map[common.Address]substrate.StateUpdate
	GasUsed          uint64
	TransientStorage map[common.Address]map[common.Hash]common.Hash
}

// StorageError wraps a DB-ref failure surfaced during execution.
type StorageError struct{ Err error }

func (e *StorageError) Error() string { return "evmhost: storage error: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// OutOfGasError reports EVM gas exhaustion.
type OutOfGasError struct{ Reason string }

func (e *OutOfGasError) Error() string { return "evmhost: out of gas: " + e.Reason }

// TransactionError reports a revert or halt. Data is the hex-encoded
// revert blob or the stringified halt reason; GasUsed is set when known.
type TransactionError struct {
	Data    []byte
	GasUsed *uint64
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("evmhost: transaction error: %x", e.Data)
}

// Host is the stateless EVM evaluator. It holds only a chain config
// (Prague or later, per spec.md §4.2 step 3) and is safe to share — a
// fresh gethvm.EVM and StateDB are allocated per Simulate call, and
// never shared across goroutines, matching spec.md §5's single-EVM-per-call
// scheduling model.
type Host struct {
	config *params.ChainConfig
}

// NewHost builds a Host targeting the Prague ruleset (or later, if the
// caller supplies a config with a later fork time set). Grounded on
// geth/config.go's EFTestChainConfig fork-level builder: we need only
// the cumulative-activation pattern, not eth2030's custom forks.
func NewHost(chainID *big.Int) *Host {
	zero := uint64(0)
	return &Host{config: &params.ChainConfig{
		ChainID:                 chainID,
		HomesteadBlock:          big.NewInt(0),
		EIP150Block:             big.NewInt(0),
		EIP155Block:             big.NewInt(0),
		EIP158Block:             big.NewInt(0),
		ByzantiumBlock:          big.NewInt(0),
		ConstantinopleBlock:     big.NewInt(0),
		PetersburgBlock:         big.NewInt(0),
		IstanbulBlock:           big.NewInt(0),
		BerlinBlock:             big.NewInt(0),
		LondonBlock:             big.NewInt(0),
		TerminalTotalDifficulty: big.NewInt(0),
		ShanghaiTime:            &zero,
		CancunTime:              &zero,
		PragueTime:              &zero,
	}}
}

// Simulate executes params against db without committing any state
// (replay semantics): a fresh, bounded StateDB is hydrated from db for
// exactly the addresses in touched, with every slot db already knows for
// them; params.Caller and params.To are not added automatically. The
// call runs to completion or reverts, and the touched-account diff
// is extracted via tracing hooks rather than via StateDB.Commit.
//
// This hydrate-then-replay approach trades the original's lazy
// DatabaseRef semantics (revm queries storage mid-execution) for a
// simpler, version-stable boundary against go-ethereum's StateDB — see
// SPEC_FULL.md §9 for the accepted tradeoff.
func (h *Host) Simulate(params_ Parameters, db substrate.DBRef, touched []common.Address) (*SimulationResult, error) {
	statedb, err := hydrateStateDB(db, touched)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	diff := newDiffTracker()
	hooks := &tracing.Hooks{
		OnBalanceChange: diff.onBalanceChange,
		OnStorageChange: diff.onStorageChange,
	}

	blockCtx := gethvm.BlockContext{
		CanTransfer: gethcore.CanTransfer,
		Transfer:    gethcore.Transfer,
		GetHash: func(n uint64) common.Hash {
			return db.BlockHash(n)
		},
		Coinbase:    common.Address{},
		GasLimit:    params_.GasLimit,
		BlockNumber: new(big.Int).SetUint64(params_.BlockNumber),
		Time:        params_.Timestamp,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
	}

	gasLimit := params_.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	blockCtx.GasLimit = gasLimit

	value := params_.Value
	if value == nil {
		value = new(uint256.Int)
	}
	to := params_.To
	msg := &gethcore.Message{
		From:      params_.Caller,
		To:        &to,
		Value:     value.ToBig(),
		GasLimit:  gasLimit,
		GasPrice:  new(big.Int),
		GasFeeCap: new(big.Int),
		GasTipCap: new(big.Int),
		Data:      params_.Calldata,
		// step 3: nonce check and EIP-3607 are disabled for simulation.
		SkipNonceChecks: true,
		SkipFromEOACheck: true,
	}

	// step 4: seed transient storage before execution.
	for addr, slots := range params_.TransientStorage {
		for slot, val := range slots {
			statedb.SetTransientState(addr, slot, val)
		}
	}

	vmConfig := gethvm.Config{}
	if params_.Trace {
		vmConfig.Tracer = hooks
	} else {
		vmConfig.Tracer = hooks
	}

	evm := gethvm.NewEVM(blockCtx, statedb, h.config, vmConfig)
	gasPool := new(gethcore.GasPool).AddGas(gasLimit)

	result, err := gethcore.ApplyMessage(evm, msg, gasPool)
	if err != nil {
		return nil, &StorageError{Err: err}
	}

	if result.Err != nil {
		if result.Err == gethvm.ErrOutOfGas {
			return nil, &OutOfGasError{Reason: result.Err.Error()}
		}
		gasUsed := result.UsedGas
		data := result.ReturnData
		if result.Err != gethvm.ErrExecutionReverted {
			data = []byte(result.Err.Error())
		}
		return nil, &TransactionError{Data: data, GasUsed: &gasUsed}
	}

	// step 6: state-diff extraction — always emit the new balance for a
	// touched account; emit storage only where changed; elide accounts
	// with no changed slots at all.
	stateDiff := make(map[common.Address]substrate.StateUpdate)
	for addr, d := range diff.accounts {
		upd := substrate.StateUpdate{Balance: statedb.GetBalance(addr).Clone()}
		if len(d.storage) > 0 {
			upd.Storage = make(map[common.Hash]common.Hash, len(d.storage))
			for slot, val := range d.storage {
				upd.Storage[slot] = val
			}
		}
		if upd.Balance != nil || len(upd.Storage) > 0 {
			stateDiff[addr] = upd
		}
	}

	return &SimulationResult{
		Output:           result.ReturnData,
		StateDiff:        stateDiff,
		GasUsed:          result.UsedGas,
		TransientStorage: map[common.Address]map[common.Hash]common.Hash{},
	}, nil
}

// hydrateStateDB builds an ephemeral, in-memory go-ethereum StateDB and
// seeds it from db for exactly the given addresses: balance, nonce,
// code, and every slot db already has a value for (via KnownSlots),
// written in with SetState before the call runs. Grounded on
// geth/prestate.go's MakePreState: a throwaway MemoryDatabase + triedb,
// seeded then left open (uncommitted) for a single replay.
func hydrateStateDB(db substrate.DBRef, addrs []common.Address) (*gethstate.StateDB, error) {
	memdb := rawdb.NewMemoryDatabase()
	tdb := triedb.NewDatabase(memdb, nil)
	sdb := gethstate.NewDatabase(tdb, nil)
	statedb, err := gethstate.New(common.Hash{}, sdb)
	if err != nil {
		return nil, err
	}

	for _, addr := range addrs {
		info, err := db.Basic(addr)
		if err != nil {
			return nil, err
		}
		statedb.CreateAccount(addr)
		statedb.AddBalance(addr, info.Balance, tracing.BalanceChangeUnspecified)
		statedb.SetNonce(addr, info.Nonce, tracing.NonceChangeUnspecified)
		if len(info.Code) > 0 {
			statedb.SetCode(addr, info.Code, tracing.CodeChangeUnspecified)
		}
		for slot, val := range db.KnownSlots(addr) {
			statedb.SetState(addr, slot, val)
		}
	}

	return statedb, nil
}

// diffTracker accumulates per-account balance/storage changes observed
// during a single EVM replay, driven by tracing.Hooks callbacks. This
// replaces hand-rolled journal diffing with go-ethereum's own tracer
// interface.
type diffTracker struct {
	accounts map[common.Address]*accountDiff
}

type accountDiff struct {
	balanceChanged bool
	storage        map[common.Hash]common.Hash
}

func newDiffTracker() *diffTracker {
	return &diffTracker{accounts: make(map[common.Address]*accountDiff)}
}

func (d *diffTracker) entry(addr common.Address) *accountDiff {
	e, ok := d.accounts[addr]
	if !ok {
		e = &accountDiff{storage: make(map[common.Hash]common.Hash)}
		d.accounts[addr] = e
	}
	return e
}

func (d *diffTracker) onBalanceChange(addr common.Address, prev, new_ *big.Int, reason tracing.BalanceChangeReason) {
	d.entry(addr).balanceChanged = true
}

func (d *diffTracker) onStorageChange(addr common.Address, slot common.Hash, prev, new_ common.Hash) {
	if prev == new_ {
		return
	}
	d.entry(addr).storage[slot] = new_
}

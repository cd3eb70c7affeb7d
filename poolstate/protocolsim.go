// Package poolstate implements the VM Pool State component: a
// ProtocolSim object bound to an adapter contract evaluated through the
// EVM host, plus the shared ProtocolSim contract implemented both here
// and by the closed-form analytical pools in package analytical.
package poolstate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolSim is the abstract contract every pool implementation
// (VM-backed or analytical) satisfies. Go has no trait objects, so
// this is a plain interface; CloneBox stands in for the original's
// clone_box, and AsAny/comparisons are handled by type assertions at
// the call site instead of as_any/as_any_mut/eq methods, which would
// be redundant against Go's native type system.
type ProtocolSim interface {
	// Fee returns the pool's nominal swap fee as a fraction (e.g. 0.003
	// for 30bps). Returns an error if the pool has no single scalar fee
	// (e.g. a VM pool whose adapter has not defined one).
	Fee() (float64, error)

	// SpotPrice returns the price of base in units of quote (quote per
	// base). EVMPoolState serves it from its cache, where a miss
	// (set_spot_prices never called, or the pair absent) is a
	// FatalError; the analytical pools compute it from their state.
	SpotPrice(base, quote common.Address) (float64, error)

	// GetAmountOut quotes a swap of amountIn of tokenIn for tokenOut.
	// Returns the new pool state reflecting the simulated post-swap
	// diff; the receiver is never mutated (property 5).
	GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (*GetAmountOutResult, error)

	// GetLimits returns (sellLimit, buyLimit) for the ordered pair.
	GetLimits(sell, buy common.Address) (*big.Int, *big.Int, error)

	// DeltaTransition applies an incremental state delta in place.
	DeltaTransition(delta Delta, tokens []common.Address, balances map[common.Address]*big.Int) error

	// CloneBox returns a deep copy suitable for "what-if" composition.
	CloneBox() ProtocolSim
}

// GetAmountOutResult is the successful (or best-effort, on limit
// overflow) outcome of GetAmountOut.
type GetAmountOutResult struct {
	AmountOut *big.Int
	GasUsed   uint64
	NewState  ProtocolSim
}

// Delta is a decoded incremental state update from the feed: a map of
// changed attributes (raw bytes, as the wire format carries them) and a
// balances delta. Matches spec.md §6's StateDelta shape.
type Delta struct {
	Attributes map[string][]byte
	Balances   map[common.Address]*big.Int
}

// Package feed implements the Stream Decoder: it consumes Tycho's
// block-indexed protocol state feed over a websocket connection,
// decodes each protocol's raw attributes into a poolstate.ProtocolSim,
// and emits per-block pool-state snapshots to the selector. Grounded on
// spec.md §4.6 and the feed shapes used throughout
// original_source/tycho-swap/src/protocol/stream.rs.
package feed

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/poolstate"
)

// Token is a traded ERC-20, as carried on the wire.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int
}

// ProtocolComponent describes a pool's static identity: its id, the
// protocol implementation it belongs to, and its constituent tokens.
type ProtocolComponent struct {
	ID             string
	ProtocolSystem string
	Tokens         []common.Address
	Static         map[string][]byte
}

// StateDelta is one pool's incremental attribute update for a block,
// matching poolstate.Delta's shape plus the component id it targets.
type StateDelta struct {
	ComponentID string
	Attributes  map[string][]byte
	Balances    map[common.Address]*big.Int
}

// BlockUpdate is one Tycho feed message: the newly indexed block plus
// any new pools, per-pool attribute deltas, and pools that dropped out
// of the tracked set (e.g. drained or deprecated).
type BlockUpdate struct {
	BlockNumber  uint64
	NewPairs     []ProtocolComponent
	States       []StateDelta
	RemovedPairs []string
}

// Decoder turns one protocol's raw component + initial attribute
// snapshot into a live poolstate.ProtocolSim. Each closed-form protocol
// and the generic VM adapter register one of these.
type Decoder func(component ProtocolComponent, attributes map[string][]byte) (poolstate.ProtocolSim, error)

// Filter reports whether a newly-seen component should be tracked at
// all; returning false drops it before a Decoder is ever invoked (used
// for the Uniswap V4 hook allow-list and similar protocol-specific
// admission rules).
type Filter func(component ProtocolComponent) bool

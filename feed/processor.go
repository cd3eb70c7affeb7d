package feed

import (
	"log"

	"github.com/tychosim/vmsim/poolstate"
)

// PoolSet holds the live decoded pool states this process is tracking,
// keyed by component id, updated in place as BlockUpdates arrive.
type PoolSet struct {
	pools map[string]poolstate.ProtocolSim
}

// NewPoolSet builds an empty tracked-pool set.
func NewPoolSet() *PoolSet {
	return &PoolSet{pools: map[string]poolstate.ProtocolSim{}}
}

// Get returns the currently tracked state for a component, if any.
func (s *PoolSet) Get(componentID string) (poolstate.ProtocolSim, bool) {
	p, ok := s.pools[componentID]
	return p, ok
}

// Len reports how many pools are currently tracked.
func (s *PoolSet) Len() int {
	return len(s.pools)
}

// Apply processes one BlockUpdate against the tracked set: admits and
// decodes new_pairs, applies each state delta via DeltaTransition, and
// drops removed_pairs. Matches spec.md §4.6's ordering (new pairs
// first, then deltas, then removals) so a delta for a pool introduced
// in the same block can apply against its freshly decoded state.
func (r *Registry) Apply(update BlockUpdate, pools *PoolSet) error {
	for _, c := range update.NewPairs {
		if !r.Admit(c) {
			continue
		}
		state, err := r.Decode(c, c.Static)
		if err != nil {
			if r.SkipStateDecodeFailures {
				log.Printf("feed: skipping %s at block %d: decode failed: %v", c.ID, update.BlockNumber, err)
				continue
			}
			return err
		}
		pools.pools[c.ID] = state
	}

	for _, delta := range update.States {
		state, ok := pools.pools[delta.ComponentID]
		if !ok {
			continue
		}
		if err := state.DeltaTransition(poolstate.Delta{Attributes: delta.Attributes, Balances: delta.Balances}, nil, delta.Balances); err != nil {
			if r.SkipStateDecodeFailures {
				log.Printf("feed: skipping delta for %s at block %d: %v", delta.ComponentID, update.BlockNumber, err)
				continue
			}
			return err
		}
	}

	for _, id := range update.RemovedPairs {
		delete(pools.pools, id)
	}

	return nil
}

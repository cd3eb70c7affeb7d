// Package selector implements the Best-Swap Selector: for a traded
// token pair, it maintains a per-pool index of the latest get_amount_out
// quote and derives the pool with the maximum output, retaining the
// previous best when a block carries no updates for that pair.
// Grounded on spec.md §4.7.
package selector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PairKey identifies a directional swap: sell tokenIn for tokenOut.
type PairKey struct {
	TokenIn, TokenOut common.Address
}

// ProbeAmount is the nominal sell size used, system-wide, to seed a
// pair's best-quote index from a newly tracked pool's get_amount_out.
// The HTTP quote endpoint scales a recorded Quote's AmountOut against
// this same base to approximate a buy amount for the caller's actual
// sell_amount (spec.md §9: "service variant ... linearly scales them by
// the requested input amount").
var ProbeAmount = big.NewInt(1_000_000_000_000_000_000)

// Quote is one pool's get_amount_out result for a pair at a block.
type Quote struct {
	PoolID      string
	Protocol    string
	AmountOut   *big.Int
	GasUsed     uint64
	BlockNumber uint64
}

// Selector tracks, per PairKey, the latest quote from every pool that
// has ever reported one, and derives the current best from that index.
// It is safe for concurrent use across goroutines recording quotes for
// different pools in the same block.
type Selector struct {
	mu     sync.RWMutex
	quotes map[PairKey]map[string]Quote
}

// New builds an empty Selector.
func New() *Selector {
	return &Selector{quotes: map[PairKey]map[string]Quote{}}
}

// Record submits one pool's quote for a pair, replacing that pool's
// previously recorded quote (if any). A nil or non-positive amountOut
// is ignored. Because each pool's own entry is replaced rather than
// compared against the pair's running maximum, a pool whose output
// drops can no longer shadow the true current best the way a single
// historical-maximum value would.
func (s *Selector) Record(pair PairKey, q Quote) {
	if q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pools, ok := s.quotes[pair]
	if !ok {
		pools = make(map[string]Quote)
		s.quotes[pair] = pools
	}
	pools[q.PoolID] = q
}

// Best returns the pool currently posting the highest output for a
// pair, and whether any pool has ever reported one. Per spec.md §4.7, a
// block with no new updates for a pair leaves the previous best in
// place rather than clearing it: Best recomputes the max from every
// pool's latest recorded quote, so it is unaffected by blocks that
// simply didn't touch this pair at all.
func (s *Selector) Best(pair PairKey) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools, ok := s.quotes[pair]
	if !ok || len(pools) == 0 {
		return Quote{}, false
	}
	var best Quote
	found := false
	for _, q := range pools {
		if !found || q.AmountOut.Cmp(best.AmountOut) > 0 {
			best = q
			found = true
		}
	}
	return best, found
}

// Reset clears every recorded quote for a pair, used when every pool
// backing it is removed from the tracked set entirely.
func (s *Selector) Reset(pair PairKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, pair)
}

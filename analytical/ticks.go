package analytical

import (
	"math/big"
	"sort"
)

// TickInfo is one initialized tick: its index and net liquidity delta
// crossed when price moves through it (positive moving up, the
// negative of that moving down), per spec.md §4.5's tick-list model.
type TickInfo struct {
	Index          int32
	NetLiquidity   *big.Int
}

// TickList is a sorted-by-index slice of initialized ticks, giving
// O(log n) lookup of the next tick above or below a given index via
// binary search (spec.md §4.5's "sorted tick list with O(log n) next
// tick lookup").
type TickList struct {
	ticks []TickInfo
}

// NewTickList builds a TickList from an unordered set, sorting once.
func NewTickList(ticks []TickInfo) *TickList {
	sorted := make([]TickInfo, len(ticks))
	copy(sorted, ticks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return &TickList{ticks: sorted}
}

// Len reports how many initialized ticks are tracked.
func (l *TickList) Len() int { return len(l.ticks) }

// NextInitialized returns the next initialized tick strictly above
// `from` (zeroForOne=false, price rising) or strictly below `from`
// (zeroForOne=true, price falling), and whether one exists.
func (l *TickList) NextInitialized(from int32, zeroForOne bool) (TickInfo, bool) {
	n := len(l.ticks)
	if zeroForOne {
		idx := sort.Search(n, func(i int) bool { return l.ticks[i].Index >= from })
		if idx == 0 {
			return TickInfo{}, false
		}
		return l.ticks[idx-1], true
	}
	idx := sort.Search(n, func(i int) bool { return l.ticks[i].Index > from })
	if idx == n {
		return TickInfo{}, false
	}
	return l.ticks[idx], true
}

// NetLiquidityBelow sums the net liquidity deltas of every initialized
// tick at or below `tick`, used to seed the active-range liquidity when
// a pool is first decoded at an arbitrary current tick.
func (l *TickList) NetLiquidityBelow(tick int32) *big.Int {
	sum := new(big.Int)
	for _, ti := range l.ticks {
		if ti.Index <= tick {
			sum.Add(sum, ti.NetLiquidity)
		}
	}
	return sum
}

package main

import (
	"log"

	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/selector"
)

// recordQuotes refreshes the selector's best-quote table for every
// pool introduced in this block, in both swap directions. Uses
// selector.ProbeAmount as the nominal sell size; POST /quote scales the
// recorded output linearly by the caller's own sell amount rather than
// re-running get_amount_out.
func recordQuotes(svc *service, update feed.BlockUpdate) {
	for _, c := range update.NewPairs {
		if len(c.Tokens) != 2 {
			continue
		}
		state, ok := svc.pools.Get(c.ID)
		if !ok {
			continue
		}

		for _, dir := range [][2]int{{0, 1}, {1, 0}} {
			tokenIn, tokenOut := c.Tokens[dir[0]], c.Tokens[dir[1]]
			res, err := state.GetAmountOut(selector.ProbeAmount, tokenIn, tokenOut)
			if err != nil {
				log.Printf("quotes: %s %s->%s: %v", c.ID, tokenIn, tokenOut, err)
				continue
			}
			svc.selector.Record(selector.PairKey{TokenIn: tokenIn, TokenOut: tokenOut}, selector.Quote{
				PoolID:      c.ID,
				Protocol:    c.ProtocolSystem,
				AmountOut:   res.AmountOut,
				GasUsed:     res.GasUsed,
				BlockNumber: update.BlockNumber,
			})
		}
	}
}

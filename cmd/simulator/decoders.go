package main

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/tychosim/vmsim/analytical"
	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/poolstate"
)

// registerDecoders binds the closed-form protocols to their
// protocol_system names; anything else falls through to the generic
// VM adapter path once a provider for adapter bytecode is wired in
// (see DESIGN.md's Open Question ledger for the current VM-routing gap).
// The uniswap_v3 and uniswap_v4 decoders pass no tick list, so ticks/*
// attributes are not decoded and those pools have no initialized ticks.
func registerDecoders(r *feed.Registry) {
	r.SkipStateDecodeFailures = true

	r.RegisterDecoder("uniswap_v2", func(c feed.ProtocolComponent, attrs map[string][]byte) (poolstate.ProtocolSim, error) {
		if len(c.Tokens) != 2 {
			return nil, &analytical.ValueError{Msg: "uniswap_v2 component must carry exactly two tokens"}
		}
		snapshot := analytical.Snapshot{Attributes: attrs, Static: c.Static}
		return analytical.DecodeUniswapV2(snapshot, c.Tokens[0], c.Tokens[1], 18, 18)
	})

	r.RegisterDecoder("uniswap_v3", func(c feed.ProtocolComponent, attrs map[string][]byte) (poolstate.ProtocolSim, error) {
		if len(c.Tokens) != 2 {
			return nil, &analytical.ValueError{Msg: "uniswap_v3 component must carry exactly two tokens"}
		}
		snapshot := analytical.Snapshot{Attributes: attrs, Static: c.Static}
		return analytical.DecodeUniswapV3(snapshot, c.Tokens[0], c.Tokens[1], 18, 18, nil)
	})

	r.RegisterDecoder("uniswap_v4", func(c feed.ProtocolComponent, attrs map[string][]byte) (poolstate.ProtocolSim, error) {
		if len(c.Tokens) != 2 {
			return nil, &analytical.ValueError{Msg: "uniswap_v4 component must carry exactly two tokens"}
		}
		snapshot := analytical.Snapshot{Attributes: attrs, Static: c.Static}
		return analytical.DecodeUniswapV4(snapshot, c.Tokens[0], c.Tokens[1], 18, 18, nil, common.Address{})
	})

	r.RegisterFilter("uniswap_v4", func(c feed.ProtocolComponent) bool {
		hookRaw, ok := c.Static["hook"]
		if !ok {
			return true
		}
		var hook common.Address
		copy(hook[:], hookRaw)
		return analytical.IsHookAllowed(hook)
	})
}

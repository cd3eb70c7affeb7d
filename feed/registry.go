package feed

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tychosim/vmsim/poolstate"
)

// vmProtocolPrefix marks a protocol_system value as VM-routed: its
// states must be simulated through the generic EVM adapter rather than
// a closed-form decoder, and the prefix itself is stripped before
// looking up the adapter name (spec.md §4.6).
const vmProtocolPrefix = "vm:"

// Registry is the decoder/filter table keyed by protocol_system, plus
// the token registry the decoders need for decimal-aware math.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
	filters  map[string]Filter
	tokens   map[string]Token // keyed by lowercase hex address

	// SkipStateDecodeFailures, when true, causes a per-pool decode
	// error to drop just that pool for the block instead of failing
	// the whole BlockUpdate (spec.md §4.6's skip_state_decode_failures).
	SkipStateDecodeFailures bool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: map[string]Decoder{},
		filters:  map[string]Filter{},
		tokens:   map[string]Token{},
	}
}

// RegisterDecoder binds a protocol_system name (without any "vm:"
// prefix) to its Decoder.
func (r *Registry) RegisterDecoder(protocolSystem string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[protocolSystem] = d
}

// RegisterFilter binds an optional admission Filter to a protocol_system.
func (r *Registry) RegisterFilter(protocolSystem string, f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[protocolSystem] = f
}

// RegisterToken adds a token to the decimal/symbol lookup table used
// when decoding pools that carry only addresses on the wire.
func (r *Registry) RegisterToken(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[strings.ToLower(t.Address.Hex())] = t
}

// TokenByAddress looks up a previously registered token.
func (r *Registry) TokenByAddress(addr [20]byte) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[strings.ToLower(fmt.Sprintf("0x%x", addr))]
	return t, ok
}

// normalizeProtocolSystem strips the "vm:" routing prefix so both VM
// and closed-form protocols share one lookup key space.
func normalizeProtocolSystem(protocolSystem string) string {
	return strings.TrimPrefix(protocolSystem, vmProtocolPrefix)
}

// IsVMRouted reports whether a protocol_system must go through the
// generic EVM adapter rather than a closed-form decoder.
func IsVMRouted(protocolSystem string) bool {
	return strings.HasPrefix(protocolSystem, vmProtocolPrefix)
}

// Admit applies the registered filter (if any) for a component's
// protocol; absence of a filter admits everything.
func (r *Registry) Admit(c ProtocolComponent) bool {
	r.mu.RLock()
	f, ok := r.filters[normalizeProtocolSystem(c.ProtocolSystem)]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return f(c)
}

// Decode looks up and invokes the decoder registered for a component's
// protocol_system.
func (r *Registry) Decode(c ProtocolComponent, attributes map[string][]byte) (poolstate.ProtocolSim, error) {
	name := normalizeProtocolSystem(c.ProtocolSystem)
	r.mu.RLock()
	d, ok := r.decoders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("feed: no decoder registered for protocol %q", name)
	}
	return d(c, attributes)
}

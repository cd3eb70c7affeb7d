package substrate

import "github.com/ethereum/go-ethereum/common"

// DBRef is the four-method read-only storage contract every simulation
// call reads against: Basic, CodeByHash, Storage, BlockHash. *Store
// implements it directly; OverriddenDB composes it with a per-call
// overrides layer.
type DBRef interface {
	Basic(addr common.Address) (AccountInfo, error)
	CodeByHash(hash common.Hash) ([]byte, error)
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)
	BlockHash(n uint64) common.Hash
	// KnownSlots returns every slot this DB-ref already has a value for
	// at addr, without touching the backing provider. The EVM host uses
	// it to hydrate a replay's StateDB before execution, since StateDB
	// has no read-through path for a SLOAD the host hasn't pre-seeded.
	KnownSlots(addr common.Address) map[common.Hash]common.Hash
}

var _ DBRef = (*Store)(nil)

// OverriddenDB short-circuits Storage against an in-memory overrides map
// before delegating to the wrapped DB-ref. All other operations
// delegate directly. This is the substrate-level building block that
// poolstate's get_overwrites/get_amount_out layers on top of.
type OverriddenDB struct {
	inner     DBRef
	overrides Overwrites
}

// NewOverriddenDB wraps inner with the given overrides.
func NewOverriddenDB(inner DBRef, overrides Overwrites) *OverriddenDB {
	return &OverriddenDB{inner: inner, overrides: overrides}
}

func (o *OverriddenDB) Basic(addr common.Address) (AccountInfo, error) {
	return o.inner.Basic(addr)
}

func (o *OverriddenDB) CodeByHash(hash common.Hash) ([]byte, error) {
	return o.inner.CodeByHash(hash)
}

func (o *OverriddenDB) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if slots, ok := o.overrides[addr]; ok {
		if v, ok := slots[slot]; ok {
			return v, nil
		}
	}
	return o.inner.Storage(addr, slot)
}

func (o *OverriddenDB) BlockHash(n uint64) common.Hash {
	return o.inner.BlockHash(n)
}

// KnownSlots merges the wrapped DB-ref's known slots with this layer's
// overrides, overrides winning on collision (matching Storage's own
// precedence).
func (o *OverriddenDB) KnownSlots(addr common.Address) map[common.Hash]common.Hash {
	inner := o.inner.KnownSlots(addr)
	out := make(map[common.Hash]common.Hash, len(inner)+len(o.overrides[addr]))
	for k, v := range inner {
		out[k] = v
	}
	for k, v := range o.overrides[addr] {
		out[k] = v
	}
	return out
}

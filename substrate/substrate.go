// Package substrate implements the simulator's storage substrate: a
// layered account/slot store exposing a read-only DB-reference contract
// (Basic, CodeByHash, Storage, BlockHash) with permanent, temporary, and
// per-call override tiers.
package substrate

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// AccountInfo mirrors the four fields the EVM needs to know about an
// account before it can execute against it.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Code     []byte
}

// StateUpdate describes a change to a single account: an optional new
// balance and an optional set of changed storage slots. The zero value
// changes nothing.
type StateUpdate struct {
	Balance *uint256.Int
	Storage map[common.Hash]common.Hash
}

// Overwrites is an address -> slot -> value map describing a one-shot
// override layer for a simulation call.
type Overwrites map[common.Address]map[common.Hash]common.Hash

// Merge folds src into dst in place, src entries winning per-slot.
// Matches EVMPoolState::merge in the original: per-address union, source
// wins on key collision.
func (dst Overwrites) Merge(src Overwrites) {
	for addr, slots := range src {
		existing, ok := dst[addr]
		if !ok {
			existing = make(map[common.Hash]common.Hash, len(slots))
			dst[addr] = existing
		}
		for slot, val := range slots {
			existing[slot] = val
		}
	}
}

// Clone returns a deep copy of o.
func (o Overwrites) Clone() Overwrites {
	out := make(Overwrites, len(o))
	for addr, slots := range o {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		out[addr] = cp
	}
	return out
}

// accountEntry is the substrate's per-account bookkeeping: account info
// plus the permanent and temporary storage tiers, and the mocked flag.
//
// Mocked accounts never trigger an RPC fetch: a missing slot on a mocked
// account reads as zero, matching the Rust original's
// OverriddenSimulationDB/SimulationDB mocked-account semantics.
type accountEntry struct {
	info      AccountInfo
	permanent map[common.Hash]common.Hash
	temporary map[common.Hash]common.Hash
	mocked    bool
}

func newAccountEntry(info AccountInfo, mocked bool) *accountEntry {
	return &accountEntry{
		info:      info,
		permanent: make(map[common.Hash]common.Hash),
		temporary: make(map[common.Hash]common.Hash),
		mocked:    mocked,
	}
}

// BlockHeader is the minimal block context the substrate binds storage
// reads to: a monotonic number, hash, and wall-clock timestamp.
type BlockHeader struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

// Provider is the substrate's RPC escape hatch: whatever the temporary
// tier falls back to when an account or slot isn't cached. Implemented
// in production by an ethclient.Client-backed adapter (see rpcprovider.go).
type Provider interface {
	BalanceAt(addr common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(addr common.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(addr common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(addr common.Address, slot common.Hash, blockNumber *big.Int) (common.Hash, error)
}

// StorageError wraps an unrecoverable backing-store failure. Retryable
// by the caller per spec. Err carries a pkg/errors stack trace captured
// at the call site, so a retry loop's logs show where the RPC call
// that failed actually originated instead of just this wrapper's Error().
type StorageError struct {
	Op   string
	Addr common.Address
	Err  error
}

func newStorageError(op string, addr common.Address, err error) *StorageError {
	return &StorageError{Op: op, Addr: addr, Err: errors.WithStack(err)}
}

func (e *StorageError) Error() string {
	return "substrate: " + e.Op + " " + e.Addr.Hex() + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrCodeByHashUnsupported is returned by Store.CodeByHash for the
// RPC-backed variant, which has no way to look up code by hash alone
// (only by address). Matches spec.md §4.1's "not supported" cell.
type codeByHashUnsupportedError struct{}

func (codeByHashUnsupportedError) Error() string {
	return "substrate: code_by_hash is not supported by the RPC-backed storage substrate"
}

// ErrCodeByHashUnsupported is the sentinel returned by CodeByHash on the
// RPC-backed Store.
var ErrCodeByHashUnsupported error = codeByHashUnsupportedError{}

// Store is the concrete, concurrency-safe storage substrate. It
// implements the DB-ref contract directly (Basic/CodeByHash/Storage/BlockHash)
// and is shared, by pointer, across every pool state bound to the same
// chain — exactly the "shared mutable cache" design note in spec.md §9.
type Store struct {
	mu       sync.RWMutex
	accounts map[common.Address]*accountEntry
	block    *BlockHeader
	provider Provider
	// precached, when true, makes this substrate behave as the
	// "pre-cached variant" of spec.md §4.1: CodeByHash succeeds by
	// scanning cached code instead of failing.
	precached bool
}

// NewStore creates an RPC-backed substrate bound to provider. With a nil
// provider there is no RPC fallback: an unknown account reads as an
// empty account and an uncached slot reads as zero, with no error, and
// CodeByHash still fails as it does for the RPC-backed variant
// (NewPreCachedStore is the variant that supports it).
func NewStore(provider Provider) *Store {
	return &Store{
		accounts: make(map[common.Address]*accountEntry),
		provider: provider,
	}
}

// NewPreCachedStore creates a substrate with no RPC backing at all;
// CodeByHash is supported (scans the cache), matching the "pre-cached
// variant" row of spec.md's DB-ref behaviour table.
func NewPreCachedStore() *Store {
	return &Store{
		accounts:  make(map[common.Address]*accountEntry),
		precached: true,
	}
}

// InitAccount seeds (or replaces) an account's info and permanent
// storage. Used both for explicit test fixtures and for the ERC-20
// overlay's mocked token accounts.
func (s *Store) InitAccount(addr common.Address, info AccountInfo, permanent map[common.Hash]common.Hash, mocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := newAccountEntry(info, mocked)
	for k, v := range permanent {
		e.permanent[k] = v
	}
	s.accounts[addr] = e
}

// SetBlock binds the substrate to a new block header. Called by
// UpdateState and directly by callers advancing the chain tip.
func (s *Store) SetBlock(b BlockHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = &b
}

// Block returns the currently bound block header, or nil if unbound.
func (s *Store) Block() *BlockHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block
}

// ClearTempStorage evicts every account's temporary (RPC-fetched) tier.
// Called when the chain advances a block, since temporary values are
// only valid for the block they were fetched against.
func (s *Store) ClearTempStorage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.accounts {
		e.temporary = make(map[common.Hash]common.Hash)
	}
}

// Basic returns the AccountInfo for addr, querying the provider and
// caching the result if the account is not yet known.
func (s *Store) Basic(addr common.Address) (AccountInfo, error) {
	s.mu.RLock()
	e, ok := s.accounts[addr]
	var cached AccountInfo
	if ok {
		cached = e.info
	}
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if s.provider == nil {
		return AccountInfo{Balance: new(uint256.Int)}, nil
	}

	blockNum := s.blockNumberBig()
	bal, err := s.provider.BalanceAt(addr, blockNum)
	if err != nil {
		return AccountInfo{}, newStorageError("basic.balance", addr, err)
	}
	nonce, err := s.provider.NonceAt(addr, blockNum)
	if err != nil {
		return AccountInfo{}, newStorageError("basic.nonce", addr, err)
	}
	code, err := s.provider.CodeAt(addr, blockNum)
	if err != nil {
		return AccountInfo{}, newStorageError("basic.code", addr, err)
	}

	u256bal, _ := uint256.FromBig(bal)
	info := AccountInfo{
		Balance:  u256bal,
		Nonce:    nonce,
		CodeHash: common.BytesToHash(nil),
		Code:     code,
	}

	s.mu.Lock()
	if _, ok := s.accounts[addr]; !ok {
		s.accounts[addr] = newAccountEntry(info, false)
	}
	s.mu.Unlock()

	return info, nil
}

// CodeByHash is not supported by the RPC-backed variant (no reverse
// hash->address index); the pre-cached variant scans its cache.
func (s *Store) CodeByHash(hash common.Hash) ([]byte, error) {
	if !s.precached {
		return nil, ErrCodeByHashUnsupported
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.accounts {
		if e.info.CodeHash == hash {
			return e.info.Code, nil
		}
	}
	return nil, nil
}

// Storage returns the value at (addr, slot). Mocked accounts never query
// the provider: a missing slot simply reads as zero. Non-mocked accounts
// check permanent, then temporary, then fall back to the provider and
// cache the fetched value as temporary.
func (s *Store) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.mu.RLock()
	e, ok := s.accounts[addr]
	if ok {
		if v, found := e.permanent[slot]; found {
			s.mu.RUnlock()
			return v, nil
		}
		if e.mocked {
			s.mu.RUnlock()
			return common.Hash{}, nil
		}
		if v, found := e.temporary[slot]; found {
			s.mu.RUnlock()
			return v, nil
		}
	}
	s.mu.RUnlock()

	if s.provider == nil {
		return common.Hash{}, nil
	}

	v, err := s.provider.StorageAt(addr, slot, s.blockNumberBig())
	if err != nil {
		return common.Hash{}, newStorageError("storage", addr, err)
	}

	s.mu.Lock()
	e, ok = s.accounts[addr]
	if !ok {
		e = newAccountEntry(AccountInfo{Balance: new(uint256.Int)}, false)
		s.accounts[addr] = e
	}
	e.temporary[slot] = v
	s.mu.Unlock()

	return v, nil
}

// KnownSlots returns every slot this substrate currently has cached for
// addr across the permanent and temporary tiers, permanent winning on
// overlap (matching Storage's own precedence). It never consults the
// provider: a slot neither tier has seen yet is simply absent, and the
// EVM host will see it as the StateDB zero-value default, matching
// Storage's own fall-through-to-zero behaviour for mocked accounts.
func (s *Store) KnownSlots(addr common.Address) map[common.Hash]common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[addr]
	if !ok {
		return nil
	}
	out := make(map[common.Hash]common.Hash, len(e.permanent)+len(e.temporary))
	for k, v := range e.temporary {
		out[k] = v
	}
	for k, v := range e.permanent {
		out[k] = v
	}
	return out
}

// BlockHash returns the bound block's hash, or the zero hash if unbound.
func (s *Store) BlockHash(n uint64) common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.block == nil {
		return common.Hash{}
	}
	return s.block.Hash
}

func (s *Store) blockNumberBig() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.block == nil {
		return nil
	}
	return new(big.Int).SetUint64(s.block.Number)
}

// UpdateState atomically applies updates at newBlock: it records the
// prior value of every referenced account/slot (for reversal), applies
// the updates into permanent storage, clears temporary storage, and
// rebinds the block. Returns the reverse-update set.
func (s *Store) UpdateState(updates map[common.Address]StateUpdate, newBlock BlockHeader) map[common.Address]StateUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	reverse := make(map[common.Address]StateUpdate, len(updates))

	for addr, upd := range updates {
		e, ok := s.accounts[addr]
		if !ok {
			e = newAccountEntry(AccountInfo{Balance: new(uint256.Int)}, false)
			s.accounts[addr] = e
		}

		rev := StateUpdate{}
		if upd.Balance != nil {
			rev.Balance = e.info.Balance.Clone()
			e.info.Balance = upd.Balance.Clone()
		}
		if len(upd.Storage) > 0 {
			rev.Storage = make(map[common.Hash]common.Hash, len(upd.Storage))
			for slot, val := range upd.Storage {
				if old, found := e.permanent[slot]; found {
					rev.Storage[slot] = old
				} else {
					rev.Storage[slot] = common.Hash{}
				}
				e.permanent[slot] = val
			}
		}
		reverse[addr] = rev
	}

	for _, e := range s.accounts {
		e.temporary = make(map[common.Hash]common.Hash)
	}
	s.block = &newBlock

	return reverse
}

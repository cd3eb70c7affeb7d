package substrate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestStorage_MockedAccountNeverFetches(t *testing.T) {
	s := NewPreCachedStore()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	slot0 := common.Hash{}

	s.InitAccount(addr, AccountInfo{Balance: new(uint256.Int)}, map[common.Hash]common.Hash{
		slot0: common.BigToHash(big.NewInt(42)),
	}, true)

	v, err := s.Storage(addr, slot0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != common.BigToHash(big.NewInt(42)) {
		t.Fatalf("want 42, got %v", v)
	}

	// A slot never initialised on a mocked account reads as zero, not
	// an RPC fetch (there is no provider bound at all here).
	missing := common.BigToHash(big.NewInt(7))
	v, err = s.Storage(addr, missing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != (common.Hash{}) {
		t.Fatalf("want zero hash for missing mocked slot, got %v", v)
	}
}

// TestStorage_CacheCorrectness is property 6: two successive Storage
// calls on the same address/slot return identical values without a
// second provider round trip.
func TestStorage_CacheCorrectness(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	slot := common.BigToHash(big.NewInt(1))
	calls := 0
	prov := &countingProvider{onStorage: func() { calls++ }, val: common.BigToHash(big.NewInt(99))}

	s := NewStore(prov)
	s.SetBlock(BlockHeader{Number: 1})

	v1, err := s.Storage(addr, slot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v2, err := s.Storage(addr, slot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("cache mismatch: %v != %v", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("want exactly 1 provider call, got %d", calls)
	}
}

// TestOverriddenDB_Isolation is scenario 6: with slot 0 of address X set
// to 100 and an overlay setting slot 0 to 101, OverriddenDB.Storage(X,0)
// == 101 and slot 1 (unoverridden) flows through unchanged.
func TestOverriddenDB_Isolation(t *testing.T) {
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	slot0 := common.BigToHash(big.NewInt(0))
	slot1 := common.BigToHash(big.NewInt(1))

	s := NewPreCachedStore()
	s.InitAccount(addr, AccountInfo{Balance: new(uint256.Int)}, map[common.Hash]common.Hash{
		slot0: common.BigToHash(big.NewInt(100)),
		slot1: common.BigToHash(big.NewInt(100)),
	}, true)

	overrides := Overwrites{
		addr: {slot0: common.BigToHash(big.NewInt(101))},
	}
	odb := NewOverriddenDB(s, overrides)

	v, err := odb.Storage(addr, slot0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != common.BigToHash(big.NewInt(101)) {
		t.Fatalf("want 101, got %v", v)
	}

	v, err = odb.Storage(addr, slot1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != common.BigToHash(big.NewInt(100)) {
		t.Fatalf("want unoverridden 100, got %v", v)
	}
}

// TestKnownSlots_PermanentWinsOverTemporary exercises the merge order
// the EVM host relies on to hydrate a replay's StateDB.
func TestKnownSlots_PermanentWinsOverTemporary(t *testing.T) {
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	slotA := common.BigToHash(big.NewInt(0))
	slotB := common.BigToHash(big.NewInt(1))

	s := NewStore(&countingProvider{onStorage: func() {}, val: common.BigToHash(big.NewInt(7))})
	s.SetBlock(BlockHeader{Number: 1})
	s.InitAccount(addr, AccountInfo{Balance: new(uint256.Int)}, map[common.Hash]common.Hash{
		slotA: common.BigToHash(big.NewInt(100)),
	}, false)

	// slotB isn't in the permanent tier yet; fetching it caches it as
	// temporary.
	if _, err := s.Storage(addr, slotB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	known := s.KnownSlots(addr)
	if known[slotA] != common.BigToHash(big.NewInt(100)) {
		t.Fatalf("want permanent slotA=100, got %v", known[slotA])
	}
	if known[slotB] != common.BigToHash(big.NewInt(7)) {
		t.Fatalf("want temporary slotB=7, got %v", known[slotB])
	}
}

// TestOverriddenDB_KnownSlotsOverridesWin mirrors TestOverriddenDB_Isolation
// for the KnownSlots path the EVM host hydrates a replay from.
func TestOverriddenDB_KnownSlotsOverridesWin(t *testing.T) {
	addr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	slot0 := common.BigToHash(big.NewInt(0))
	slot1 := common.BigToHash(big.NewInt(1))

	s := NewPreCachedStore()
	s.InitAccount(addr, AccountInfo{Balance: new(uint256.Int)}, map[common.Hash]common.Hash{
		slot0: common.BigToHash(big.NewInt(100)),
		slot1: common.BigToHash(big.NewInt(100)),
	}, true)

	odb := NewOverriddenDB(s, Overwrites{addr: {slot0: common.BigToHash(big.NewInt(101))}})
	known := odb.KnownSlots(addr)
	if known[slot0] != common.BigToHash(big.NewInt(101)) {
		t.Fatalf("want overridden slot0=101, got %v", known[slot0])
	}
	if known[slot1] != common.BigToHash(big.NewInt(100)) {
		t.Fatalf("want unoverridden slot1=100, got %v", known[slot1])
	}
}

type countingProvider struct {
	onStorage func()
	val       common.Hash
}

func (c *countingProvider) BalanceAt(addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (c *countingProvider) NonceAt(addr common.Address, blockNumber *big.Int) (uint64, error) {
	return 0, nil
}
func (c *countingProvider) CodeAt(addr common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *countingProvider) StorageAt(addr common.Address, slot common.Hash, blockNumber *big.Int) (common.Hash, error) {
	c.onStorage()
	return c.val, nil
}

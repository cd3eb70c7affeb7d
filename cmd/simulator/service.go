package main

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tychosim/vmsim/config"
	"github.com/tychosim/vmsim/feed"
	"github.com/tychosim/vmsim/router"
	"github.com/tychosim/vmsim/selector"
)

// service wires the tracked pool set, the best-swap selector, and the
// Permit2 signing key together behind the httpapi.Backend interface.
type service struct {
	cfg      *config.Config
	pools    *feed.PoolSet
	selector *selector.Selector
	key      *ecdsa.PrivateKey
	chainID  *big.Int

	mu           sync.RWMutex
	lastBlock    uint64
	lastBlockSet bool
}

func newService(cfg *config.Config) (*service, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		return nil, err
	}
	return &service{
		cfg:      cfg,
		pools:    feed.NewPoolSet(),
		selector: selector.New(),
		key:      key,
		chainID:  new(big.Int).SetUint64(cfg.Chain.ChainID()),
	}, nil
}

// SetLastBlock records the most recently applied feed block number,
// surfaced by GET /health's optional last_block field.
func (s *service) SetLastBlock(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBlock = n
	s.lastBlockSet = true
}

// LastBlock returns the most recently applied feed block number, and
// whether any block has been applied yet.
func (s *service) LastBlock() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlock, s.lastBlockSet
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (s *service) Pools() *feed.PoolSet           { return s.pools }
func (s *service) Selector() *selector.Selector   { return s.selector }

// BuildSwapCall assembles the router call shell for a quoted swap; the
// adapter-specific protocol_data blob is populated by the best pool's
// own swap encoding, which is out of scope for this minimal wiring
// pass (see DESIGN.md's Open Question ledger).
func (s *service) BuildSwapCall(tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (router.SwapCall, error) {
	pair := selector.PairKey{TokenIn: tokenIn, TokenOut: tokenOut}
	best, ok := s.selector.Best(pair)
	if !ok {
		return router.SwapCall{}, errors.New("no route available for this pair")
	}

	signerAddr := crypto.PubkeyToAddress(s.key.PublicKey)
	return router.SwapCall{
		AmountIn:     amountIn,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		MinAmountOut: minAmountOut,
		Receiver:     signerAddr,
		ProtocolData: []byte(best.PoolID),
		Permit: router.PermitSingle{
			Details: router.PermitDetails{
				Token:      tokenIn,
				Amount:     amountIn,
				Expiration: 0,
				Nonce:      0,
			},
			Spender:     router.Permit2Address,
			SigDeadline: big.NewInt(0),
		},
	}, nil
}

func (s *service) SignPermit(call router.SwapCall) ([]byte, error) {
	return router.SignPermit(s.chainID, call.Permit, s.key)
}

package substrate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthclientProvider adapts go-ethereum's ethclient.Client to the
// substrate's Provider interface. This is the real RPC provider behind
// UNICHAIN_RPC_URL (spec.md §6); the RPC call itself blocks the calling
// goroutine, matching spec.md §4.1/§5's "RPC fetches block the calling
// thread" requirement (Go has no separate async boundary to bridge).
type EthclientProvider struct {
	client *ethclient.Client
}

// DialEthclientProvider connects to rpcURL and returns a Provider.
func DialEthclientProvider(rpcURL string) (*EthclientProvider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthclientProvider{client: client}, nil
}

func (p *EthclientProvider) BalanceAt(addr common.Address, blockNumber *big.Int) (*big.Int, error) {
	return p.client.BalanceAt(context.Background(), addr, blockNumber)
}

func (p *EthclientProvider) NonceAt(addr common.Address, blockNumber *big.Int) (uint64, error) {
	return p.client.NonceAt(context.Background(), addr, blockNumber)
}

func (p *EthclientProvider) CodeAt(addr common.Address, blockNumber *big.Int) ([]byte, error) {
	return p.client.CodeAt(context.Background(), addr, blockNumber)
}

func (p *EthclientProvider) StorageAt(addr common.Address, slot common.Hash, blockNumber *big.Int) (common.Hash, error) {
	raw, err := p.client.StorageAt(context.Background(), addr, slot, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

var _ Provider = (*EthclientProvider)(nil)

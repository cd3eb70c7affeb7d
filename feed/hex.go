package feed

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func hexToAddress(s string) common.Address {
	return common.HexToAddress(s)
}

func hexToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil
	}
	return b
}

func hexMapToBytes(m map[string]string) map[string][]byte {
	if m == nil {
		return nil
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = hexToBytes(v)
	}
	return out
}

func hexMapToBigInt(m map[string]string) map[common.Address]*big.Int {
	if m == nil {
		return nil
	}
	out := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		out[hexToAddress(k)] = new(big.Int).SetBytes(hexToBytes(v))
	}
	return out
}

package router

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// singleSwapPermit2Signature is the router's fixed entrypoint for a
// single-hop swap funded by a Permit2 transferFrom, matching
// original_source's encode_tycho_router_call / singleSwapPermit2 shape.
const singleSwapPermit2Signature = "singleSwapPermit2(uint256,address,address,uint256,bool,bool,address,bytes,(((address,uint160,uint48,uint48),address,uint256),bytes))"

var singleSwapPermit2Args abi.Arguments

func init() {
	permitSigTuple, _ := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "permit", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "details", Type: "tuple", Components: []abi.ArgumentMarshaling{
				{Name: "token", Type: "address"},
				{Name: "amount", Type: "uint160"},
				{Name: "expiration", Type: "uint48"},
				{Name: "nonce", Type: "uint48"},
			}},
			{Name: "spender", Type: "address"},
			{Name: "sigDeadline", Type: "uint256"},
		}},
		{Name: "signature", Type: "bytes"},
	})

	amountIn, _ := abi.NewType("uint256", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	minOut, _ := abi.NewType("uint256", "", nil)
	boolT, _ := abi.NewType("bool", "", nil)
	bytesT, _ := abi.NewType("bytes", "", nil)

	singleSwapPermit2Args = abi.Arguments{
		{Type: amountIn},
		{Type: addr},
		{Type: addr},
		{Type: minOut},
		{Type: boolT},
		{Type: boolT},
		{Type: addr},
		{Type: bytesT},
		{Type: permitSigTuple},
	}
}

// SwapCall is the set of arguments a single-hop router swap needs,
// beyond the permit itself.
type SwapCall struct {
	AmountIn       *big.Int
	TokenIn        common.Address
	TokenOut       common.Address
	MinAmountOut   *big.Int
	WrapETH        bool
	UnwrapETH      bool
	Receiver       common.Address
	ProtocolData   []byte
	Permit         PermitSingle
	PermitSignature []byte
}

// selector4 returns the 4-byte function selector for a signature.
func selector4(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

var singleSwapPermit2Selector = selector4(singleSwapPermit2Signature)

// EncodeSingleSwapPermit2 packs the router's singleSwapPermit2
// calldata: a 4-byte selector followed by the ABI-encoded argument
// tuple (no function-header offset stripping is needed here since the
// whole call is a top-level tuple, unlike the partial calldata an
// adapter's own entrypoints receive).
func EncodeSingleSwapPermit2(call SwapCall) ([]byte, error) {
	permitTuple := struct {
		Permit    PermitSingleABI
		Signature []byte
	}{
		Permit:    toPermitSingleABI(call.Permit),
		Signature: call.PermitSignature,
	}

	packed, err := singleSwapPermit2Args.Pack(
		call.AmountIn,
		call.TokenIn,
		call.TokenOut,
		call.MinAmountOut,
		call.WrapETH,
		call.UnwrapETH,
		call.Receiver,
		call.ProtocolData,
		permitTuple,
	)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+len(packed))
	out = append(out, singleSwapPermit2Selector...)
	out = append(out, packed...)
	return out, nil
}

// PermitDetailsABI/PermitSingleABI mirror PermitDetails/PermitSingle
// with the field order abi.Arguments.Pack needs for its reflective
// tuple encoding.
type PermitDetailsABI struct {
	Token      common.Address
	Amount     *big.Int
	Expiration *big.Int
	Nonce      *big.Int
}

type PermitSingleABI struct {
	Details     PermitDetailsABI
	Spender     common.Address
	SigDeadline *big.Int
}

func toPermitSingleABI(p PermitSingle) PermitSingleABI {
	return PermitSingleABI{
		Details: PermitDetailsABI{
			Token:      p.Details.Token,
			Amount:     p.Details.Amount,
			Expiration: big.NewInt(int64(p.Details.Expiration)),
			Nonce:      big.NewInt(int64(p.Details.Nonce)),
		},
		Spender:     p.Spender,
		SigDeadline: p.SigDeadline,
	}
}

package router

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TestSignPermit_RecoversSigner is property 8: signing a PermitSingle
// and recovering the signer from (hash, signature) yields the original
// address.
func TestSignPermit_RecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)

	permit := PermitSingle{
		Details: PermitDetails{
			Token:      common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			Amount:     big.NewInt(1_000_000),
			Expiration: 1893456000,
			Nonce:      0,
		},
		Spender:     common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"),
		SigDeadline: big.NewInt(1893456000),
	}
	chainID := big.NewInt(1)

	sig, err := SignPermit(chainID, permit, key)
	if err != nil {
		t.Fatalf("SignPermit: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("want a 65-byte signature, got %d", len(sig))
	}

	hash := SigningHash(chainID, permit)
	recoverSig := make([]byte, 65)
	copy(recoverSig, sig)
	recoverSig[64] -= 27 // crypto.SigToPub wants the 0/1 recovery id
	pub, err := crypto.SigToPub(hash.Bytes(), recoverSig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	got := crypto.PubkeyToAddress(*pub)
	if got != want {
		t.Fatalf("want signer %s, got %s", want.Hex(), got.Hex())
	}
}

func TestSigningHash_DifferentChainIDsDiffer(t *testing.T) {
	permit := PermitSingle{
		Details: PermitDetails{
			Token:      common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			Amount:     big.NewInt(1),
			Expiration: 1,
			Nonce:      0,
		},
		Spender:     common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"),
		SigDeadline: big.NewInt(1),
	}
	h1 := SigningHash(big.NewInt(1), permit)
	h2 := SigningHash(big.NewInt(8453), permit)
	if h1 == h2 {
		t.Fatalf("signing hash should depend on chain id")
	}
}

func TestEncodeSingleSwapPermit2_SelectorPrefix(t *testing.T) {
	call := SwapCall{
		AmountIn:     big.NewInt(1000),
		TokenIn:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenOut:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		MinAmountOut: big.NewInt(1),
		Receiver:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		ProtocolData: []byte{0xde, 0xad},
		Permit: PermitSingle{
			Details: PermitDetails{
				Token:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
				Amount:     big.NewInt(1000),
				Expiration: 1,
				Nonce:      0,
			},
			Spender:     Permit2Address,
			SigDeadline: big.NewInt(1),
		},
		PermitSignature: make([]byte, 65),
	}
	data, err := EncodeSingleSwapPermit2(call)
	if err != nil {
		t.Fatalf("EncodeSingleSwapPermit2: %v", err)
	}
	if len(data) < 4 {
		t.Fatalf("want at least a 4-byte selector, got %d bytes", len(data))
	}
	for i, b := range singleSwapPermit2Selector {
		if data[i] != b {
			t.Fatalf("selector mismatch at byte %d", i)
		}
	}
}

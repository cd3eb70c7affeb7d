// Package router builds and signs the calldata a swap needs to reach
// the chain: Permit2 single-token permits (EIP-712) and the router's
// single-swap entrypoint encoding. Grounded on spec.md §6 and
// original_source/tycho-swap/bin/service/main.rs's sign_permit /
// encode_tycho_router_call flow.
package router

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Permit2Address is Uniswap's canonical Permit2 deployment, identical
// across every chain the simulator targets.
var Permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")

// PermitDetails is the Permit2 PermitSingle.details field.
type PermitDetails struct {
	Token      common.Address
	Amount     *big.Int // uint160
	Expiration uint64   // uint48
	Nonce      uint64   // uint48
}

// PermitSingle is the full Permit2 struct signed over EIP-712.
type PermitSingle struct {
	Details     PermitDetails
	Spender     common.Address
	SigDeadline *big.Int
}

// EIP-712 type hashes for the Permit2 PermitSingle schema, per
// https://github.com/Uniswap/permit2's canonical type strings.
var (
	permitDetailsTypeHash = crypto.Keccak256Hash([]byte(
		"PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)"))
	permitSingleTypeHash = crypto.Keccak256Hash([]byte(
		"PermitSingle(PermitDetails details,address spender,uint256 sigDeadline)" +
			"PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)"))
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,uint256 chainId,address verifyingContract)"))
)

func uint256Bytes(v *big.Int) []byte {
	var b [32]byte
	v.FillBytes(b[:])
	return b[:]
}

func addressBytes(a common.Address) []byte {
	var b [32]byte
	copy(b[12:], a.Bytes())
	return b[:]
}

func hashPermitDetails(d PermitDetails) common.Hash {
	buf := make([]byte, 0, 5*32)
	buf = append(buf, permitDetailsTypeHash.Bytes()...)
	buf = append(buf, addressBytes(d.Token)...)
	buf = append(buf, uint256Bytes(d.Amount)...)
	buf = append(buf, uint256Bytes(big.NewInt(int64(d.Expiration)))...)
	buf = append(buf, uint256Bytes(big.NewInt(int64(d.Nonce)))...)
	return crypto.Keccak256Hash(buf)
}

func hashPermitSingle(p PermitSingle) common.Hash {
	detailsHash := hashPermitDetails(p.Details)
	buf := make([]byte, 0, 4*32)
	buf = append(buf, permitSingleTypeHash.Bytes()...)
	buf = append(buf, detailsHash.Bytes()...)
	buf = append(buf, addressBytes(p.Spender)...)
	buf = append(buf, uint256Bytes(p.SigDeadline)...)
	return crypto.Keccak256Hash(buf)
}

func domainSeparator(chainID *big.Int) common.Hash {
	nameHash := crypto.Keccak256Hash([]byte("Permit2"))
	buf := make([]byte, 0, 4*32)
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, nameHash.Bytes()...)
	buf = append(buf, uint256Bytes(chainID)...)
	buf = append(buf, addressBytes(Permit2Address)...)
	return crypto.Keccak256Hash(buf)
}

// SigningHash computes the EIP-712 digest Permit2 expects a signature
// over: keccak256("\x19\x01" || domainSeparator || structHash).
func SigningHash(chainID *big.Int, p PermitSingle) common.Hash {
	domain := domainSeparator(chainID)
	structHash := hashPermitSingle(p)
	buf := make([]byte, 0, 2+32+32)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domain.Bytes()...)
	buf = append(buf, structHash.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// SignPermit signs a PermitSingle with the given key, returning the
// 65-byte r||s||v signature Permit2's permit() call expects.
func SignPermit(chainID *big.Int, p PermitSingle, key *ecdsa.PrivateKey) ([]byte, error) {
	hash := SigningHash(chainID, p)
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, err
	}
	// go-ethereum's recovery id is 0/1; Permit2/ecrecover expects 27/28.
	sig[64] += 27
	return sig, nil
}

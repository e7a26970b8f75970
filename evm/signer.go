package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKeySigner signs typed data with a locally held ECDSA key. Intended
// for service accounts and tests; interactive wallets implement Signer
// themselves.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewPrivateKeySigner creates a signer from a hex-encoded secp256k1 private
// key, with or without a 0x prefix.
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &PrivateKeySigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address returns the signer's checksummed address.
func (s *PrivateKeySigner) Address() string {
	return s.address
}

// SignTypedData hashes the typed data and produces a 65-byte signature with
// v in {27, 28}, the convention EIP-3009 contracts expect.
func (s *PrivateKeySigner) SignTypedData(
	_ context.Context,
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := HashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// go-ethereum returns v as a recovery id (0/1); contracts expect 27/28.
	signature[64] += 27
	return signature, nil
}

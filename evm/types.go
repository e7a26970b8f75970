// Package evm implements the authorization mechanism for eip155 networks:
// building, signing and verifying EIP-3009 style transfer authorizations
// with EIP-712 domain separation over {token name, token version, chain id,
// asset contract}.
package evm

import (
	"context"
	"math/big"
)

// TransferAuthorization is the time-bounded, nonce-unique transfer
// instruction that gets signed. All numeric fields are decimal strings and
// the nonce is a 32-byte hex string, matching the wire encoding.
type TransferAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// AuthorizationPayload is the mechanism-specific half of a PaymentPayload:
// the authorization plus its detached signature.
type AuthorizationPayload struct {
	Signature     string                `json:"signature"`
	Authorization TransferAuthorization `json:"authorization"`
}

// ToMap converts the payload to the generic map carried inside a
// PaymentPayload.
func (p *AuthorizationPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": p.Signature,
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
}

// PayloadFromMap reconstructs an AuthorizationPayload from the generic map
// carried inside a PaymentPayload. Missing fields are left zero; callers
// validate afterwards.
func PayloadFromMap(data map[string]interface{}) *AuthorizationPayload {
	payload := &AuthorizationPayload{}
	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}
	auth, ok := data["authorization"].(map[string]interface{})
	if !ok {
		return payload
	}
	if from, ok := auth["from"].(string); ok {
		payload.Authorization.From = from
	}
	if to, ok := auth["to"].(string); ok {
		payload.Authorization.To = to
	}
	if value, ok := auth["value"].(string); ok {
		payload.Authorization.Value = value
	}
	if validAfter, ok := auth["validAfter"].(string); ok {
		payload.Authorization.ValidAfter = validAfter
	}
	if validBefore, ok := auth["validBefore"].(string); ok {
		payload.Authorization.ValidBefore = validBefore
	}
	if nonce, ok := auth["nonce"].(string); ok {
		payload.Authorization.Nonce = nonce
	}
	return payload
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Signer is the client-side signing capability. Implementations own key
// custody; SignTypedData may involve out-of-band user interaction with
// unbounded latency, which is why it takes a context.
type Signer interface {
	// Address returns the signer's address.
	Address() string

	// SignTypedData signs EIP-712 typed data and returns a 65-byte
	// (r, s, v) signature.
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// BalanceReader reports a payer's balance for an asset. Used as a guard
// before requesting a signature, and by the verifier as a best-effort
// solvency check.
type BalanceReader interface {
	Balance(ctx context.Context, owner string, asset string) (*big.Int, error)
}

// Package paygate implements the wire types and requirement registry for a
// payment-gated query protocol. A protected resource answers unpaid requests
// with an HTTP 402 carrying a PaymentRequired challenge; the requester signs
// a time-bounded transfer authorization matching one of the offered
// requirements and resends the request with the authorization attached.
package paygate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// ProtocolVersion is the supported x402 protocol version.
const ProtocolVersion = 2

// Network is a blockchain network identifier in CAIP-2 format,
// namespace:reference (e.g. "eip155:84532" for Base Sepolia).
type Network string

// Parse splits the network into namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// ChainID returns the numeric chain reference of an eip155 network.
func (n Network) ChainID() (*big.Int, error) {
	namespace, reference, err := n.Parse()
	if err != nil {
		return nil, err
	}
	if namespace != "eip155" {
		return nil, fmt.Errorf("network %s is not an eip155 network", n)
	}
	id, ok := new(big.Int).SetString(reference, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain reference: %s", reference)
	}
	return id, nil
}

// Match checks whether the network matches a pattern. Patterns may end in
// ":*" to match a whole namespace (e.g. "eip155:*").
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	p := string(pattern)
	if strings.HasSuffix(p, ":*") {
		return strings.HasPrefix(string(n), strings.TrimSuffix(p, "*"))
	}
	return false
}

// PaymentRequirements defines what payment satisfies a protected resource.
// Amount is denominated in the asset's smallest unit, as a decimal string.
// Immutable once issued to a client.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the protected resource a challenge refers to.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the challenge returned with a 402 response. The first
// entry in Accepts is the default choice for requesters.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload carries a signed authorization back to the resource.
// Payload holds the mechanism-specific authorization and signature;
// Accepted must be bit-identical to one entry previously offered in a
// PaymentRequired for the same resource.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
}

// VerifyResponse is the result of verifying a payment payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Facilitator settles verified authorizations on-chain. Settlement is an
// external concern; implementations live outside this module.
type Facilitator interface {
	Settle(payload PaymentPayload, requirements PaymentRequirements) (transaction string, err error)
}

// DeepEqual reports whether two values are equal after JSON normalization.
// Used to check that an accepted requirement is bit-identical to an offered
// one regardless of field ordering in transit.
func DeepEqual(a, b interface{}) bool {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aNorm, bNorm interface{}
	if err := json.Unmarshal(aJSON, &aNorm); err != nil {
		return false
	}
	if err := json.Unmarshal(bJSON, &bNorm); err != nil {
		return false
	}

	aCanon, _ := json.Marshal(aNorm)
	bCanon, _ := json.Marshal(bNorm)
	return string(aCanon) == string(bCanon)
}

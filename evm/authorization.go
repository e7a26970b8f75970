package evm

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	paygate "github.com/nexfield-ai/paygate"
)

const (
	// SkewToleranceSeconds is subtracted from "now" when setting
	// validAfter, compensating clock drift between requester and verifier.
	SkewToleranceSeconds = 600

	// NonceBytes is the size of an authorization nonce.
	NonceBytes = 32
)

// AuthorizationBuilder constructs signed, time-bounded, nonce-unique
// transfer authorizations matching a payment requirement. One builder is
// safe for concurrent use; every Build generates a fresh nonce.
type AuthorizationBuilder struct {
	signer  Signer
	balance BalanceReader
	now     func() time.Time
}

// BuilderOption configures an AuthorizationBuilder.
type BuilderOption func(*AuthorizationBuilder)

// WithBalanceReader enables the pre-signature balance guard. Without it,
// insufficient funds surface only at verification time.
func WithBalanceReader(reader BalanceReader) BuilderOption {
	return func(b *AuthorizationBuilder) {
		b.balance = reader
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *AuthorizationBuilder) {
		b.now = now
	}
}

// NewAuthorizationBuilder creates a builder around a signing capability.
func NewAuthorizationBuilder(signer Signer, opts ...BuilderOption) *AuthorizationBuilder {
	b := &AuthorizationBuilder{
		signer: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs and signs an authorization for the given requirement.
//
// Error codes:
//   - malformed_requirement if the network cannot be parsed into a chain id
//     or the amount is not a decimal integer
//   - insufficient_funds if a balance reader is configured and the payer's
//     balance is below the required amount (checked before any signing
//     interaction)
//   - signing_rejected if the signing capability declines
func (b *AuthorizationBuilder) Build(ctx context.Context, requirements paygate.PaymentRequirements) (*AuthorizationPayload, error) {
	chainID, err := requirements.Network.ChainID()
	if err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeMalformedRequirement,
			fmt.Sprintf("cannot resolve chain id: %v", err), nil)
	}

	value, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return nil, paygate.NewPaymentError(paygate.ErrCodeMalformedRequirement,
			fmt.Sprintf("invalid amount: %s", requirements.Amount), nil)
	}

	// Balance guard runs before the signature request so an underfunded
	// payer is not asked to interact with their wallet for nothing.
	if b.balance != nil {
		balance, err := b.balance.Balance(ctx, b.signer.Address(), requirements.Asset)
		if err != nil {
			return nil, fmt.Errorf("balance check failed: %w", err)
		}
		if balance.Cmp(value) < 0 {
			return nil, paygate.NewPaymentError(paygate.ErrCodeInsufficientFunds,
				fmt.Sprintf("balance %s below required amount %s", balance, value), map[string]interface{}{
					"asset":  requirements.Asset,
					"amount": requirements.Amount,
				})
		}
	}

	nonce, err := NewNonce()
	if err != nil {
		return nil, err
	}

	now := b.now()
	validAfter := now.Unix() - SkewToleranceSeconds
	timeout := requirements.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = paygate.DefaultMaxTimeoutSeconds
	}
	validBefore := now.Unix() + int64(timeout)

	authorization := TransferAuthorization{
		From:        b.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  fmt.Sprintf("%d", validAfter),
		ValidBefore: fmt.Sprintf("%d", validBefore),
		Nonce:       nonce,
	}

	tokenName, tokenVersion := tokenInfo(requirements)
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: requirements.Asset,
	}

	message, err := authorizationMessage(authorization)
	if err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeMalformedRequirement, err.Error(), nil)
	}

	signature, err := b.signer.SignTypedData(ctx, domain, TransferAuthorizationTypes(), PrimaryType, message)
	if err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeSigningRejected,
			fmt.Sprintf("signing capability declined: %v", err), nil)
	}

	return &AuthorizationPayload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}, nil
}

// NewNonce generates a cryptographically random 32-byte nonce as a
// 0x-prefixed hex string.
func NewNonce() (string, error) {
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return BytesToHex(nonce), nil
}

// tokenInfo extracts the EIP-712 token name/version from a requirement's
// extra fields.
func tokenInfo(requirements paygate.PaymentRequirements) (name, version string) {
	if requirements.Extra != nil {
		if n, ok := requirements.Extra["name"].(string); ok {
			name = n
		}
		if v, ok := requirements.Extra["version"].(string); ok {
			version = v
		}
	}
	return name, version
}

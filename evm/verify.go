package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	paygate "github.com/nexfield-ai/paygate"
)

// LocalVerifier verifies payment payloads against the requirements a
// resource offered, without contacting an external facilitator. Checks run
// cheapest-first; signature recovery happens last and replay marking happens
// only after every other check has passed, so a rejected payload never burns
// its nonce.
type LocalVerifier struct {
	replay  *paygate.ReplayGuard
	balance BalanceReader
	now     func() time.Time
}

// VerifierOption configures a LocalVerifier.
type VerifierOption func(*LocalVerifier)

// WithVerifierBalanceReader enables the best-effort payer solvency check.
func WithVerifierBalanceReader(reader BalanceReader) VerifierOption {
	return func(v *LocalVerifier) {
		v.balance = reader
	}
}

// WithVerifierClock overrides the time source. Used in tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *LocalVerifier) {
		v.now = now
	}
}

// NewLocalVerifier creates a verifier backed by the given replay guard.
func NewLocalVerifier(replay *paygate.ReplayGuard, opts ...VerifierOption) *LocalVerifier {
	v := &LocalVerifier{
		replay: replay,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// invalid builds a rejecting VerifyResponse.
func invalid(reason string, args ...interface{}) (*paygate.VerifyResponse, error) {
	return &paygate.VerifyResponse{
		IsValid:       false,
		InvalidReason: fmt.Sprintf(reason, args...),
	}, nil
}

// Verify checks a payment payload against the ordered requirement set the
// resource offers. Returns a non-error VerifyResponse with IsValid=false for
// protocol-level rejections; an error return means verification itself could
// not run.
func (v *LocalVerifier) Verify(ctx context.Context, payload paygate.PaymentPayload, offered []paygate.PaymentRequirements) (*paygate.VerifyResponse, error) {
	if payload.X402Version != paygate.ProtocolVersion {
		return invalid("unsupported x402 version: %d", payload.X402Version)
	}

	// The accepted requirement must be bit-identical to one the resource
	// actually offered. Anything else is tampering or a stale challenge.
	matched := false
	for _, req := range offered {
		if paygate.DeepEqual(payload.Accepted, req) {
			matched = true
			break
		}
	}
	if !matched {
		return invalid("accepted requirements do not match any offered requirement")
	}

	accepted := payload.Accepted
	if accepted.Scheme != paygate.SchemeExact {
		return invalid("unsupported scheme: %s", accepted.Scheme)
	}
	chainID, err := accepted.Network.ChainID()
	if err != nil {
		return invalid("unsupported network: %v", err)
	}

	auth := PayloadFromMap(payload.Payload)
	if auth.Signature == "" {
		return invalid("missing signature")
	}
	if auth.Authorization.Nonce == "" {
		return invalid("missing authorization nonce")
	}

	if !strings.EqualFold(auth.Authorization.To, accepted.PayTo) {
		return invalid("authorization recipient %s does not match payee %s", auth.Authorization.To, accepted.PayTo)
	}

	required, ok := new(big.Int).SetString(accepted.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid required amount: %s", accepted.Amount)
	}
	value, ok := new(big.Int).SetString(auth.Authorization.Value, 10)
	if !ok {
		return invalid("invalid authorization value: %s", auth.Authorization.Value)
	}
	if value.Cmp(required) < 0 {
		return invalid("authorization value %s below required amount %s", value, required)
	}

	now := v.now().Unix()
	validAfter, ok := new(big.Int).SetString(auth.Authorization.ValidAfter, 10)
	if !ok {
		return invalid("invalid validAfter: %s", auth.Authorization.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.Authorization.ValidBefore, 10)
	if !ok {
		return invalid("invalid validBefore: %s", auth.Authorization.ValidBefore)
	}
	if validAfter.Cmp(big.NewInt(now)) >= 0 {
		return invalid("authorization not yet valid")
	}
	if validBefore.Cmp(big.NewInt(now)) <= 0 {
		return invalid("authorization expired")
	}

	tokenName, tokenVersion := tokenInfo(accepted)
	digest, err := HashTransferAuthorization(auth.Authorization, chainID, accepted.Asset, tokenName, tokenVersion)
	if err != nil {
		return invalid("cannot hash authorization: %v", err)
	}

	signature, err := HexToBytes(auth.Signature)
	if err != nil || len(signature) != 65 {
		return invalid("malformed signature")
	}
	// Accept both recovery-id (0/1) and contract (27/28) v encodings.
	recoverSig := make([]byte, 65)
	copy(recoverSig, signature)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}
	publicKey, err := crypto.SigToPub(digest, recoverSig)
	if err != nil {
		return invalid("signature recovery failed: %v", err)
	}
	recovered := crypto.PubkeyToAddress(*publicKey).Hex()
	if !strings.EqualFold(recovered, auth.Authorization.From) {
		return invalid("signature signer %s does not match authorization from %s", recovered, auth.Authorization.From)
	}

	if v.balance != nil {
		balance, err := v.balance.Balance(ctx, auth.Authorization.From, accepted.Asset)
		if err != nil {
			return nil, fmt.Errorf("balance check failed: %w", err)
		}
		if balance.Cmp(value) < 0 {
			return invalid("payer balance %s below authorization value %s", balance, value)
		}
	}

	// Last: burn the nonce. Marking only after all other checks pass means
	// a payload rejected for any reason above can be corrected and resent.
	if !v.replay.MarkIfUnseen(auth.Authorization.From, accepted.Asset, auth.Authorization.Nonce) {
		return invalid("authorization nonce already used")
	}

	return &paygate.VerifyResponse{
		IsValid: true,
		Payer:   auth.Authorization.From,
	}, nil
}

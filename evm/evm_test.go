package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paygate "github.com/nexfield-ai/paygate"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe512961708279f1d4b24eaf6f63ef4c"

func testRequirements() paygate.PaymentRequirements {
	return paygate.PaymentRequirements{
		Scheme:            paygate.SchemeExact,
		Network:           "eip155:84532",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:            "10000",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
		Extra: map[string]interface{}{
			"name":    "USDC",
			"version": "2",
		},
	}
}

type staticBalance struct {
	balance *big.Int
	err     error
}

func (b staticBalance) Balance(context.Context, string, string) (*big.Int, error) {
	return b.balance, b.err
}

func TestNewNonceUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		nonce, err := NewNonce()
		require.NoError(t, err)
		assert.Len(t, nonce, 2+2*NonceBytes)
		assert.False(t, seen[nonce], "nonce repeated: %s", nonce)
		seen[nonce] = true
	}
}

func TestBuildValidityWindow(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	builder := NewAuthorizationBuilder(signer, WithClock(func() time.Time { return now }))

	payload, err := builder.Build(context.Background(), testRequirements())
	require.NoError(t, err)

	assert.Equal(t, "1699999400", payload.Authorization.ValidAfter, "validAfter should be now minus skew tolerance")
	assert.Equal(t, "1700000300", payload.Authorization.ValidBefore, "validBefore should be now plus maxTimeoutSeconds")
	assert.Equal(t, signer.Address(), payload.Authorization.From)
	assert.Equal(t, "10000", payload.Authorization.Value)
}

func TestBuildDefaultTimeout(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	builder := NewAuthorizationBuilder(signer, WithClock(func() time.Time { return now }))

	req := testRequirements()
	req.MaxTimeoutSeconds = 0
	payload, err := builder.Build(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "1700000300", payload.Authorization.ValidBefore)
}

func TestBuildFreshNoncePerCall(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	builder := NewAuthorizationBuilder(signer)

	first, err := builder.Build(context.Background(), testRequirements())
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), testRequirements())
	require.NoError(t, err)

	assert.NotEqual(t, first.Authorization.Nonce, second.Authorization.Nonce)
}

func TestBuildMalformedNetwork(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	builder := NewAuthorizationBuilder(signer)

	req := testRequirements()
	req.Network = "not-a-network"
	_, err = builder.Build(context.Background(), req)
	assert.Equal(t, paygate.ErrCodeMalformedRequirement, paygate.CodeOf(err))
}

func TestBuildInsufficientFunds(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	builder := NewAuthorizationBuilder(signer,
		WithBalanceReader(staticBalance{balance: big.NewInt(9999)}))

	_, err = builder.Build(context.Background(), testRequirements())
	assert.Equal(t, paygate.ErrCodeInsufficientFunds, paygate.CodeOf(err))
}

type decliningSigner struct {
	address string
}

func (s decliningSigner) Address() string { return s.address }

func (s decliningSigner) SignTypedData(context.Context, TypedDataDomain, map[string][]TypedDataField, string, map[string]interface{}) ([]byte, error) {
	return nil, errors.New("user declined")
}

func TestBuildSigningRejected(t *testing.T) {
	builder := NewAuthorizationBuilder(decliningSigner{address: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"})
	_, err := builder.Build(context.Background(), testRequirements())
	assert.Equal(t, paygate.ErrCodeSigningRejected, paygate.CodeOf(err))
}

func buildPaymentPayload(t *testing.T, req paygate.PaymentRequirements, opts ...BuilderOption) paygate.PaymentPayload {
	t.Helper()
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	builder := NewAuthorizationBuilder(signer, opts...)
	auth, err := builder.Build(context.Background(), req)
	require.NoError(t, err)
	return paygate.PaymentPayload{
		X402Version: paygate.ProtocolVersion,
		Payload:     auth.ToMap(),
		Accepted:    req,
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.True(t, resp.IsValid, "reason: %s", resp.InvalidReason)

	signer, _ := NewPrivateKeySigner(testPrivateKey)
	assert.Equal(t, signer.Address(), resp.Payer)
}

func TestVerifyRejectsReplay(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	offered := []paygate.PaymentRequirements{req}

	resp, err := verifier.Verify(context.Background(), payload, offered)
	require.NoError(t, err)
	require.True(t, resp.IsValid)

	resp, err = verifier.Verify(context.Background(), payload, offered)
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "nonce already used")
}

func TestVerifyRejectsExpired(t *testing.T) {
	req := testRequirements()
	signedAt := time.Unix(1_700_000_000, 0)
	payload := buildPaymentPayload(t, req, WithClock(func() time.Time { return signedAt }))

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour),
		WithVerifierClock(func() time.Time { return signedAt.Add(10 * time.Minute) }))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "expired")
}

func TestVerifyRejectsNotYetValid(t *testing.T) {
	req := testRequirements()
	signedAt := time.Unix(1_700_000_000, 0)
	payload := buildPaymentPayload(t, req, WithClock(func() time.Time { return signedAt }))

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour),
		WithVerifierClock(func() time.Time { return signedAt.Add(-11 * time.Minute) }))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
}

func TestVerifyRejectsTamperedAccepted(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	// Inflate the offered amount after signing; the accepted copy no longer
	// matches anything the resource offers.
	offered := testRequirements()
	offered.Amount = "20000"

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{offered})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "do not match")
}

func TestVerifyRejectsWrongPayee(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	auth := payload.Payload["authorization"].(map[string]interface{})
	auth["to"] = "0x0000000000000000000000000000000000000001"

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "does not match payee")
}

func TestVerifyRejectsTamperedValue(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	// Raising the value after signing breaks the signature binding.
	auth := payload.Payload["authorization"].(map[string]interface{})
	auth["value"] = "20000"

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "does not match authorization from")
}

func TestVerifyRejectsInsufficientValue(t *testing.T) {
	req := testRequirements()
	underpaid := req
	underpaid.Amount = "100"
	payload := buildPaymentPayload(t, underpaid)
	// Present the underpaid authorization against the real requirement while
	// keeping accepted identical to an offered entry.
	payload.Accepted = req

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "below required amount")
}

func TestVerifyRejectsWrongVersion(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)
	payload.X402Version = 1

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "version")
}

func TestVerifyBalanceCheck(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	verifier := NewLocalVerifier(paygate.NewReplayGuard(time.Hour),
		WithVerifierBalanceReader(staticBalance{balance: big.NewInt(1)}))
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.False(t, resp.IsValid)
	assert.Contains(t, resp.InvalidReason, "balance")
}

func TestRejectedPayloadDoesNotBurnNonce(t *testing.T) {
	req := testRequirements()
	payload := buildPaymentPayload(t, req)

	guard := paygate.NewReplayGuard(time.Hour)
	verifier := NewLocalVerifier(guard)

	// First attempt against a mismatched offer set is rejected before the
	// replay mark, so a retry against the right offer still succeeds.
	other := testRequirements()
	other.Amount = "99999"
	resp, err := verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{other})
	require.NoError(t, err)
	require.False(t, resp.IsValid)

	resp, err = verifier.Verify(context.Background(), payload, []paygate.PaymentRequirements{req})
	require.NoError(t, err)
	assert.True(t, resp.IsValid, "reason: %s", resp.InvalidReason)
}

// Package httpx carries the payment protocol over HTTP: header codecs for
// challenges and payment payloads, and a RoundTripper that drives the
// two-phase challenge/authorize/resend flow transparently.
package httpx

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"

	paygate "github.com/nexfield-ai/paygate"
)

const (
	// HeaderPaymentRequired is the canonical response header carrying an
	// encoded PaymentRequired challenge.
	HeaderPaymentRequired = "Payment-Required"

	// HeaderPayment is the request header carrying an encoded
	// PaymentPayload.
	HeaderPayment = "X-Payment"
)

// challengeHeaderNames lists the header names checked for a challenge, in
// order: the canonical name first, then variants some proxies rewrite to.
// Single-header transport through intermediaries is inherently fragile;
// the body fallback in ChallengeFromResponse covers the rest.
var challengeHeaderNames = []string{
	HeaderPaymentRequired,
	"X-Payment-Required",
}

var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// EncodeChallengeHeader encodes a challenge as base64 over canonical JSON.
func EncodeChallengeHeader(challenge paygate.PaymentRequired) (string, error) {
	data, err := json.Marshal(challenge)
	if err != nil {
		return "", paygate.NewPaymentError(paygate.ErrCodeDecode,
			"failed to marshal challenge: "+err.Error(), nil)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeChallengeHeader decodes a base64 challenge header.
func DecodeChallengeHeader(header string) (*paygate.PaymentRequired, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeDecode,
			"invalid base64 in challenge header: "+err.Error(), nil)
	}
	var challenge paygate.PaymentRequired
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeDecode,
			"invalid challenge JSON: "+err.Error(), nil)
	}
	return &challenge, nil
}

// EncodePaymentHeader encodes a payment payload for the X-Payment header.
func EncodePaymentHeader(payload paygate.PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", paygate.NewPaymentError(paygate.ErrCodeDecode,
			"failed to marshal payment payload: "+err.Error(), nil)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader validates and decodes an X-Payment header: base64
// format, JSON structure, then structural payload validation. Every failure
// maps to an invalid_payment error so the service can answer with a fresh
// challenge rather than a 500.
func DecodePaymentHeader(header string) (*paygate.PaymentPayload, error) {
	if header == "" {
		return nil, paygate.NewPaymentError(paygate.ErrCodeInvalidPayment,
			"payment header is empty", nil)
	}
	if !base64Regex.MatchString(header) {
		return nil, paygate.NewPaymentError(paygate.ErrCodeInvalidPayment,
			"payment header is not valid base64", nil)
	}
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeInvalidPayment,
			"payment header base64 decoding failed: "+err.Error(), nil)
	}
	var payload paygate.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeInvalidPayment,
			"payment header is not valid JSON: "+err.Error(), nil)
	}
	if err := paygate.ValidatePaymentPayload(payload); err != nil {
		return nil, paygate.NewPaymentError(paygate.ErrCodeInvalidPayment, err.Error(), nil)
	}
	return &payload, nil
}

// ChallengeFromResponse extracts a challenge from a 402 response: the
// canonical header, then the fallback header names in order, then the JSON
// body (accepts/x402Version keys). Returns a decode_error when no usable
// challenge is found anywhere.
func ChallengeFromResponse(header http.Header, body []byte) (*paygate.PaymentRequired, error) {
	var lastErr error
	for _, name := range challengeHeaderNames {
		value := header.Get(name)
		if value == "" {
			continue
		}
		challenge, err := DecodeChallengeHeader(value)
		if err != nil {
			lastErr = err
			continue
		}
		return challenge, nil
	}

	if len(body) > 0 {
		var challenge paygate.PaymentRequired
		if err := json.Unmarshal(body, &challenge); err == nil && len(challenge.Accepts) > 0 {
			return &challenge, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, paygate.NewPaymentError(paygate.ErrCodeDecode,
		"no payment challenge found in response", nil)
}

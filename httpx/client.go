package httpx

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	paygate "github.com/nexfield-ai/paygate"
	"github.com/nexfield-ai/paygate/evm"
)

// RequirementSelector chooses which offered requirement to fulfill.
type RequirementSelector func(accepts []paygate.PaymentRequirements) (paygate.PaymentRequirements, error)

// DefaultSelector picks the first offered requirement this client can
// fulfill: exact scheme on an eip155 network.
func DefaultSelector(accepts []paygate.PaymentRequirements) (paygate.PaymentRequirements, error) {
	for _, req := range accepts {
		if req.Scheme == paygate.SchemeExact && req.Network.Match("eip155:*") {
			return req, nil
		}
	}
	return paygate.PaymentRequirements{}, paygate.NewPaymentError(paygate.ErrCodeMalformedRequirement,
		"no fulfillable requirement offered", nil)
}

// FallbackChallengeFunc reconstructs a default challenge locally when the
// server's challenge cannot be decoded. Implementations must fill the true
// resource URL passed in, never a placeholder, so a decode failure does not
// masquerade as a different resource.
type FallbackChallengeFunc func(resourceURL string) *paygate.PaymentRequired

// PaymentRoundTripper drives the two-phase payment flow transparently:
// send plain, and on a 402 build exactly one signed authorization and resend
// the identical request with it attached. A second 402 is reported as
// payment_rejected and never auto-retried.
type PaymentRoundTripper struct {
	base     http.RoundTripper
	builder  *evm.AuthorizationBuilder
	selector RequirementSelector
	fallback FallbackChallengeFunc
	logger   *slog.Logger
}

// RoundTripperOption configures a PaymentRoundTripper.
type RoundTripperOption func(*PaymentRoundTripper)

// WithTransport sets the underlying transport. Defaults to
// http.DefaultTransport.
func WithTransport(base http.RoundTripper) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.base = base
	}
}

// WithSelector overrides the requirement selection strategy.
func WithSelector(selector RequirementSelector) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.selector = selector
	}
}

// WithFallbackChallenge enables local challenge reconstruction when the
// server's challenge fails to decode. Without it, a decode failure aborts
// the request.
func WithFallbackChallenge(fallback FallbackChallengeFunc) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.fallback = fallback
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RoundTripperOption {
	return func(t *PaymentRoundTripper) {
		t.logger = logger
	}
}

// NewPaymentRoundTripper creates a payment-aware transport around an
// authorization builder.
func NewPaymentRoundTripper(builder *evm.AuthorizationBuilder, opts ...RoundTripperOption) *PaymentRoundTripper {
	t := &PaymentRoundTripper{
		base:     http.DefaultTransport,
		builder:  builder,
		selector: DefaultSelector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WrapClient returns a copy of client whose transport handles payment
// challenges. A nil client wraps http.DefaultClient.
func WrapClient(client *http.Client, builder *evm.AuthorizationBuilder, opts ...RoundTripperOption) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}
	wrapped := *client
	if wrapped.Transport != nil {
		opts = append([]RoundTripperOption{WithTransport(wrapped.Transport)}, opts...)
	}
	wrapped.Transport = NewPaymentRoundTripper(builder, opts...)
	return &wrapped
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Buffer the body up front: the resend must carry the identical body,
	// and the first attempt consumes the original reader.
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	var respBody []byte
	if resp.Body != nil {
		respBody, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read 402 response body: %w", err)
		}
	}

	resourceURL := req.URL.String()
	challenge, err := ChallengeFromResponse(resp.Header, respBody)
	if err != nil {
		if t.fallback == nil {
			return nil, err
		}
		// The fallback challenge is locally reconstructed, not verified
		// against the server; its price may be stale. Logged distinctly
		// so operators can tell the paths apart.
		t.logger.Warn("challenge decode failed, using locally reconstructed fallback",
			"resource", resourceURL,
			"error", err)
		challenge = t.fallback(resourceURL)
		if challenge == nil || len(challenge.Accepts) == 0 {
			return nil, paygate.NewPaymentError(paygate.ErrCodeDecode,
				"fallback challenge has no requirements", nil)
		}
	}

	selected, err := t.selector(challenge.Accepts)
	if err != nil {
		return nil, err
	}

	// Exactly one authorization per logical request: Build runs once and
	// there is no retry loop below, so a nonce is never reused.
	auth, err := t.builder.Build(req.Context(), selected)
	if err != nil {
		return nil, err
	}

	resource := challenge.Resource
	if resource == nil {
		resource = &paygate.ResourceInfo{URL: resourceURL}
	}
	payment := paygate.PaymentPayload{
		X402Version: paygate.ProtocolVersion,
		Payload:     auth.ToMap(),
		Accepted:    selected,
		Resource:    resource,
	}
	header, err := EncodePaymentHeader(payment)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if bodyBytes != nil {
		retry.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		retry.ContentLength = int64(len(bodyBytes))
	}
	retry.Header.Set(HeaderPayment, header)

	t.logger.Debug("resending request with payment authorization",
		"resource", resourceURL,
		"network", selected.Network,
		"amount", selected.Amount)

	finalResp, err := t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if finalResp.StatusCode == http.StatusPaymentRequired {
		reason := ""
		if finalResp.Body != nil {
			rejected, _ := io.ReadAll(io.LimitReader(finalResp.Body, 4096))
			finalResp.Body.Close()
			reason = string(rejected)
		}
		return nil, paygate.NewPaymentError(paygate.ErrCodePaymentRejected,
			"payment rejected by resource", map[string]interface{}{
				"resource": resourceURL,
				"response": reason,
			})
	}
	return finalResp, nil
}

// Package echomw provides the payment gate as Echo middleware, mirroring
// the Gin variant for services built on Echo.
package echomw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	paygate "github.com/nexfield-ai/paygate"
	"github.com/nexfield-ai/paygate/httpx"
)

// PayerKey is the echo context key holding the verified payer address.
const PayerKey = "paygate.payer"

// Verifier checks a payment payload against the offered requirements.
type Verifier interface {
	Verify(ctx context.Context, payload paygate.PaymentPayload, offered []paygate.PaymentRequirements) (*paygate.VerifyResponse, error)
}

// Options configures the payment middleware.
type Options struct {
	// ResourceRootURL prefixes the request path to form the resource URL
	// carried in challenges.
	ResourceRootURL string
	Logger          *slog.Logger
}

type challengeBody struct {
	Error       string                        `json:"error"`
	Accepts     []paygate.PaymentRequirements `json:"accepts"`
	X402Version int                           `json:"x402Version"`
}

// Payment gates requests behind the registry's requirements.
func Payment(registry *paygate.RequirementRegistry, verifier Verifier, opts Options) echo.MiddlewareFunc {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			resourceURL := opts.ResourceRootURL + c.Request().URL.Path
			challenge := registry.Challenge(resourceURL)

			respondChallenge := func(reason string) error {
				header, err := httpx.EncodeChallengeHeader(challenge)
				if err == nil {
					c.Response().Header().Set(httpx.HeaderPaymentRequired, header)
				}
				return c.JSON(http.StatusPaymentRequired, challengeBody{
					Error:       reason,
					Accepts:     challenge.Accepts,
					X402Version: paygate.ProtocolVersion,
				})
			}

			paymentHeader := c.Request().Header.Get(httpx.HeaderPayment)
			if paymentHeader == "" {
				return respondChallenge("payment required")
			}

			payload, err := httpx.DecodePaymentHeader(paymentHeader)
			if err != nil {
				logger.Warn("malformed payment header", "resource", resourceURL, "error", err)
				return respondChallenge(err.Error())
			}

			response, err := verifier.Verify(c.Request().Context(), *payload, registry.Requirements())
			if err != nil {
				logger.Error("payment verification errored", "resource", resourceURL, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "payment verification unavailable")
			}
			if !response.IsValid {
				logger.Warn("payment rejected", "resource", resourceURL, "reason", response.InvalidReason)
				return respondChallenge(response.InvalidReason)
			}

			c.Set(PayerKey, response.Payer)
			return next(c)
		}
	}
}

// PayerFrom returns the verified payer address recorded by the middleware.
func PayerFrom(c echo.Context) string {
	if s, ok := c.Get(PayerKey).(string); ok {
		return s
	}
	return ""
}

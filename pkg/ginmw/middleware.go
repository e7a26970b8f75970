// Package ginmw provides the payment gate as Gin middleware: unpaid
// requests get a 402 with the challenge in both the Payment-Required header
// and the JSON body; verified requests proceed with the payer recorded on
// the request context.
package ginmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	paygate "github.com/nexfield-ai/paygate"
	"github.com/nexfield-ai/paygate/httpx"
)

// PayerKey is the gin context key holding the verified payer address.
const PayerKey = "paygate.payer"

// Verifier checks a payment payload against the offered requirements.
type Verifier interface {
	Verify(ctx context.Context, payload paygate.PaymentPayload, offered []paygate.PaymentRequirements) (*paygate.VerifyResponse, error)
}

// Options configures the payment middleware.
type Options struct {
	// ResourceRootURL prefixes the request path to form the resource URL
	// carried in challenges, e.g. "https://api.example.com".
	ResourceRootURL string
	Logger          *slog.Logger
}

// Payment gates requests behind the registry's requirements. A missing or
// unverifiable payment header yields a 402 challenge; verification errors
// that prevent checking at all yield a 500.
func Payment(registry *paygate.RequirementRegistry, verifier Verifier, opts Options) gin.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		resourceURL := opts.ResourceRootURL + c.Request.URL.Path
		challenge := registry.Challenge(resourceURL)

		abortWithChallenge := func(reason string) {
			header, err := httpx.EncodeChallengeHeader(challenge)
			if err == nil {
				c.Header(httpx.HeaderPaymentRequired, header)
			}
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":       reason,
				"accepts":     challenge.Accepts,
				"x402Version": paygate.ProtocolVersion,
			})
		}

		paymentHeader := c.GetHeader(httpx.HeaderPayment)
		if paymentHeader == "" {
			abortWithChallenge("payment required")
			return
		}

		payload, err := httpx.DecodePaymentHeader(paymentHeader)
		if err != nil {
			logger.Warn("malformed payment header", "resource", resourceURL, "error", err)
			abortWithChallenge(err.Error())
			return
		}

		response, err := verifier.Verify(c.Request.Context(), *payload, registry.Requirements())
		if err != nil {
			logger.Error("payment verification errored", "resource", resourceURL, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       "payment verification unavailable",
				"x402Version": paygate.ProtocolVersion,
			})
			return
		}
		if !response.IsValid {
			logger.Warn("payment rejected", "resource", resourceURL, "reason", response.InvalidReason)
			abortWithChallenge(response.InvalidReason)
			return
		}

		c.Set(PayerKey, response.Payer)
		c.Next()
	}
}

// PayerFrom returns the verified payer address recorded by the middleware.
func PayerFrom(c *gin.Context) string {
	payer, _ := c.Get(PayerKey)
	if s, ok := payer.(string); ok {
		return s
	}
	return ""
}

package paygate

import "fmt"

// ValidatePaymentRequirements performs basic validation on payment
// requirements before they are offered or fulfilled.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.Amount == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// ValidatePaymentPayload performs structural validation on a payment payload.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version != ProtocolVersion {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	if err := ValidatePaymentRequirements(p.Accepted); err != nil {
		return fmt.Errorf("accepted requirements: %w", err)
	}
	return nil
}

package paygate

import "fmt"

// PaymentError is the closed error taxonomy surfaced to callers. Every
// payment-related failure maps to one of the codes below; callers never see
// a raw transport error dressed up as a payment failure.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes.
const (
	// ErrCodeConfiguration: no payee or price configured for a resource.
	ErrCodeConfiguration = "configuration_error"
	// ErrCodePaymentRequired: the resource demanded payment. An expected
	// branch of the protocol, not a failure.
	ErrCodePaymentRequired = "payment_required"
	// ErrCodeInsufficientFunds: payer balance below the required amount,
	// detected before requesting a signature.
	ErrCodeInsufficientFunds = "insufficient_funds"
	// ErrCodeSigningRejected: the signing capability declined or the user
	// aborted.
	ErrCodeSigningRejected = "signing_rejected"
	// ErrCodePaymentRejected: server-side verification failed after an
	// authorization was presented. Never auto-retried.
	ErrCodePaymentRejected = "payment_rejected"
	// ErrCodeMalformedRequirement: a requirement's network could not be
	// parsed into a chain id, or another field is unusable.
	ErrCodeMalformedRequirement = "malformed_requirement"
	// ErrCodeDecode: a challenge or payload failed to decode.
	ErrCodeDecode = "decode_error"
	// ErrCodeInvalidPayment: payment header malformed or missing fields.
	ErrCodeInvalidPayment = "invalid_payment"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{Code: code, Message: message, Details: details}
}

// CodeOf returns the payment error code of err, or "" if err is not a
// PaymentError.
func CodeOf(err error) string {
	if pe, ok := err.(*PaymentError); ok {
		return pe.Code
	}
	return ""
}

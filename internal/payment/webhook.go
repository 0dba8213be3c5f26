package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook event types pushed by the provider
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// SignatureHeader carries the hex encoded HMAC-SHA256 of the raw body
const SignatureHeader = "X-Webhook-Signature"

var ErrBadSignature = errors.New("webhook signature mismatch")

// Event is one provider push notification. Metadata echoes whatever was
// attached at checkout time, which makes the handler self-sufficient.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	PaymentID string            `json:"payment_id"`
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata"`
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent verifies the body signature and decodes the event.
// Constant-time comparison, the signature is attacker controlled.
func ParseEvent(secret string, body []byte, signature string) (Event, error) {
	var event Event

	if !hmac.Equal([]byte(Sign(secret, body)), []byte(signature)) {
		return event, ErrBadSignature
	}

	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("failed to decode webhook event: %w", err)
	}

	return event, nil
}

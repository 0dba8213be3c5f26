// Package payment is a thin client for the hosted payment provider:
// checkout-session creation, payment-status lookup and webhook payload
// verification. The provider itself stays a black box.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pixelift/pixelift/internal/logger"
)

// Payment statuses as the provider reports them
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

const (
	CodeDeclined = "declined"
	CodeNotFound = "not-found"
	CodeUnknown  = "unknown"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, error: %v", e.Code, e.Err)
}

func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CheckoutRequest describes one checkout session to create. Metadata
// travels to the provider and comes back on every webhook, so webhook
// handling never needs a database join to recover the purchase intent.
type CheckoutRequest struct {
	CustomerEmail   string            `json:"customer_email"`
	CustomerName    string            `json:"customer_name"`
	ProductName     string            `json:"product_name"`
	Amount          decimal.Decimal   `json:"amount"`
	BillingInterval string            `json:"billing_interval"`
	Metadata        map[string]string `json:"metadata"`
}

type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Client struct {
	baseURL string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  l,
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	var session CheckoutSession

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return session, NewError(CodeUnknown, fmt.Errorf("failed to encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return session, NewError(CodeUnknown, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return session, NewError(CodeUnknown, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
			return session, NewError(CodeUnknown, fmt.Errorf("failed to decode response: %w", err))
		}
		c.logger.Debug("Checkout session created", "session_id", session.SessionID)
		return session, nil
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return session, NewError(CodeDeclined, fmt.Errorf("provider declined checkout, status code %d", resp.StatusCode))
	default:
		c.logger.Warn("Failed to create checkout session", "status_code", resp.StatusCode)
		return session, NewError(CodeUnknown, fmt.Errorf("unknown status code %d", resp.StatusCode))
	}
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	var payment Payment

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return payment, NewError(CodeUnknown, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return payment, NewError(CodeUnknown, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
			return payment, NewError(CodeUnknown, fmt.Errorf("failed to decode response: %w", err))
		}
		c.logger.Debug("Payment status", "payment_id", payment.ID, "status", payment.Status)
		return payment, nil
	case http.StatusNotFound:
		return payment, NewError(CodeNotFound, fmt.Errorf("payment %s not found", paymentID))
	default:
		c.logger.Warn("Failed to get payment", "status_code", resp.StatusCode, "payment_id", paymentID)
		return payment, NewError(CodeUnknown, fmt.Errorf("unknown status code %d for payment %s", resp.StatusCode, paymentID))
	}
}

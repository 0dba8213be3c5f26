package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase is one checkout attempt and its lifecycle.
//
// SessionID is the provider's checkout-session id known at checkout
// time. PaymentID is the final payment id delivered by the webhook;
// the two are distinct provider identifiers and both are retained.
//
// Status transitions:
//
//	pending   -> completed  (payment settled, credits granted)
//	pending   -> failed     (payment failed)
//	completed -> refunded   (provider refund, credits reversed)
//
// Every transition is a storage-level conditional update, so two racing
// completion triggers resolve to exactly one winner.
type Purchase struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	CompletedAt  *time.Time
	UserID       uuid.UUID
	PlanID       string
	SessionID    string
	PaymentID    string
	Status       string
	Amount       decimal.Decimal
	CreditsAdded int64
}

package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionTypeSignupBonus  = "signup_bonus"
	TransactionTypePurchase     = "purchase"
	TransactionTypeUsage        = "usage"
	TransactionTypeUsagePremium = "usage_premium"
	TransactionTypeRefund       = "refund"
)

// Balance is the single prepaid-credit row per user.
// Mutated only through conditional updates, never read-modify-write.
type Balance struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Balance int64
}

// Transaction is an append-only audit record of one balance mutation.
// Amount is signed: positive for credits, negative for debits.
// BalanceAfter snapshots the balance right after the mutation, so
// replaying a user's transactions in order reproduces every balance.
type Transaction struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	UserID       uuid.UUID
	Type         string
	Amount       int64
	BalanceAfter int64
	Description  string
	Metadata     map[string]string
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pixelift/pixelift/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email already exists has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, name string, hashedPassword string) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token and mark it used in one statement.
	// If the token is already used must return apperrors.ErrRefreshTokenIsUsed
	// and keep the original usedAt untouched.
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

// Balance repository interface
//
// Every mutation is a single conditional UPDATE, so concurrent debits
// for the same user can not lose updates.
type BalanceRepo interface {
	// Create balance seeded with initial credits
	// Concurrent first calls race on the user_id unique constraint: the
	// loser gets apperrors.ErrUserAlreadyExists and should re-read.
	CreateBalance(ctx context.Context, userID uuid.UUID, initial int64) (models.Balance, error)

	// Create the row with initial credits unless it already exists.
	// Never fails on the concurrent case; the bool reports whether this
	// call created the row.
	EnsureBalance(ctx context.Context, userID uuid.UUID, initial int64) (models.Balance, bool, error)

	// If balance row absent must return apperrors.ErrBalanceNotFound
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Credit amount (positive) unconditionally
	AddCredits(ctx context.Context, userID uuid.UUID, amount int64) (models.Balance, error)

	// Debit amount (positive) only when the balance covers it.
	// Must return *apperrors.InsufficientCreditsError otherwise; the
	// balance stays untouched in that case.
	DeductCredits(ctx context.Context, userID uuid.UUID, amount int64) (models.Balance, error)
}

// Transaction repository interface. The log is append-only: no update
// or delete methods exist on purpose.
type TransactionRepo interface {
	Append(ctx context.Context, t models.Transaction) (models.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error)
}

// Plan repository interface
type PlanRepo interface {
	// Return active plan by id
	// Absent or inactive plans must return apperrors.ErrPlanNotFound
	GetActivePlan(ctx context.Context, planID string) (models.Plan, error)
	ListActivePlans(ctx context.Context) ([]models.Plan, error)
}

// Purchase repository interface
//
// Status transitions are conditional updates guarded by the current
// status, which is the only de-duplication mechanism between the
// webhook and the synchronous verify path.
type PurchaseRepo interface {
	Create(ctx context.Context, p models.Purchase) (models.Purchase, error)

	// Most recent pending purchase for the (user, plan) pair
	// If none exists must return apperrors.ErrPurchaseNotFound
	LatestPending(ctx context.Context, userID uuid.UUID, planID string) (models.Purchase, error)

	// Find purchase by the provider's final payment id
	GetByPaymentID(ctx context.Context, paymentID string) (models.Purchase, error)

	// Transition pending -> completed, backfilling the final payment id.
	// If the purchase is not pending anymore (someone else won the race)
	// must return apperrors.ErrPurchaseNotFound and change nothing.
	MarkCompleted(ctx context.Context, purchaseID uuid.UUID, paymentID string) (models.Purchase, error)

	// Transition pending -> failed
	MarkFailed(ctx context.Context, purchaseID uuid.UUID) (models.Purchase, error)

	// Transition completed -> refunded
	MarkRefunded(ctx context.Context, purchaseID uuid.UUID) (models.Purchase, error)

	// Pending purchases created before the deadline, oldest first.
	// Used by the reconciler to sweep checkouts the client never verified.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Purchase, error)
}

// Storage aggregates entity repositories over one connection or tx
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Balance() BalanceRepo
	Transaction() TransactionRepo
	Plan() PlanRepo
	Purchase() PurchaseRepo

	// InTx runs fn with a Storage bound to a single database transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}

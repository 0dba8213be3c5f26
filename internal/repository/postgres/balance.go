package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

const createBalance = `-- name: CreateBalance
INSERT INTO balances (user_id, balance)
VALUES ($1, $2)
RETURNING id, user_id, balance
`

func (r *BalanceRepo) CreateBalance(ctx context.Context, userID uuid.UUID, initial int64) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, createBalance, userID, initial)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return balance, apperrors.ErrUserAlreadyExists
		}

		return balance, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

const ensureBalance = `-- name: EnsureBalance
INSERT INTO balances (user_id, balance)
VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING
RETURNING id, user_id, balance
`

// EnsureBalance inserts the row with the initial amount unless one
// already exists. DO NOTHING keeps the concurrent case error-free, so
// the method is safe inside a surrounding transaction; the read-back
// covers the "someone else inserted first" branch.
func (r *BalanceRepo) EnsureBalance(ctx context.Context, userID uuid.UUID, initial int64) (models.Balance, bool, error) {
	rows, _ := r.DB.Query(ctx, ensureBalance, userID, initial)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		balance, err = r.GetBalance(ctx, userID)
		return balance, false, err
	default:
		return balance, false, fmt.Errorf("db error: %w", err)
	}
}

const getBalance = `-- name: GetBalance
SELECT id, user_id, balance FROM balances
WHERE user_id = $1
`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrBalanceNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const addCredits = `-- name: AddCredits
UPDATE balances
SET balance = balance + $2
WHERE user_id = $1
RETURNING id, user_id, balance
`

func (r *BalanceRepo) AddCredits(ctx context.Context, userID uuid.UUID, amount int64) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, addCredits, userID, amount)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrBalanceNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const deductCredits = `-- name: DeductCredits
UPDATE balances
SET balance = balance - $2
WHERE user_id = $1 AND balance >= $2
RETURNING id, user_id, balance
`

// Deduct amount in one conditional update. Two concurrent debits both
// pass through here, so the WHERE guard is what makes double-spending
// impossible: the second one sees the already decremented balance.
func (r *BalanceRepo) DeductCredits(ctx context.Context, userID uuid.UUID, amount int64) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, deductCredits, userID, amount)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either the row is absent or the balance does not cover the
		// amount. Re-read to tell the two apart.
		current, getErr := r.GetBalance(ctx, userID)
		if getErr != nil {
			return balance, getErr
		}
		return balance, &apperrors.InsufficientCreditsError{Available: current.Balance, Requested: amount}
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.ID, &b.UserID, &b.Balance)
	return b, err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/models"
)

type PurchaseRepo struct {
	DB DBTX
}

const createPurchase = `-- name: CreatePurchase
INSERT INTO purchases (id, created_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
`

func (r *PurchaseRepo) Create(ctx context.Context, p models.Purchase) (models.Purchase, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = models.PurchaseStatusPending
	}

	rows, _ := r.DB.Query(ctx, createPurchase,
		p.ID, p.CreatedAt, p.UserID, p.PlanID, p.SessionID, p.PaymentID, p.Status, p.Amount, p.CreditsAdded)
	p, err := pgx.CollectOneRow(rows, rowToPurchase)
	if err != nil {
		return p, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

const latestPending = `-- name: LatestPendingPurchase
SELECT id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
FROM purchases
WHERE user_id = $1 AND plan_id = $2 AND status = 'pending'
ORDER BY created_at DESC
LIMIT 1
`

func (r *PurchaseRepo) LatestPending(ctx context.Context, userID uuid.UUID, planID string) (models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, latestPending, userID, planID)
	return collectPurchase(rows)
}

const getByPaymentID = `-- name: GetPurchaseByPaymentID
SELECT id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
FROM purchases
WHERE payment_id = $1
`

func (r *PurchaseRepo) GetByPaymentID(ctx context.Context, paymentID string) (models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, getByPaymentID, paymentID)
	return collectPurchase(rows)
}

// The checkout stored the provider's *session* id; the final *payment*
// id only becomes known from the webhook and is backfilled here. An
// empty paymentID keeps whatever is stored (the synchronous verify path
// does not learn the payment id).
const markCompleted = `-- name: MarkPurchaseCompleted
UPDATE purchases
SET status = 'completed',
    payment_id = CASE WHEN $2 = '' THEN payment_id ELSE $2 END,
    completed_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
`

func (r *PurchaseRepo) MarkCompleted(ctx context.Context, purchaseID uuid.UUID, paymentID string) (models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, markCompleted, purchaseID, paymentID, time.Now())
	return collectPurchase(rows)
}

const markFailed = `-- name: MarkPurchaseFailed
UPDATE purchases
SET status = 'failed', completed_at = $2
WHERE id = $1 AND status = 'pending'
RETURNING id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
`

func (r *PurchaseRepo) MarkFailed(ctx context.Context, purchaseID uuid.UUID) (models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, markFailed, purchaseID, time.Now())
	return collectPurchase(rows)
}

const markRefunded = `-- name: MarkPurchaseRefunded
UPDATE purchases
SET status = 'refunded'
WHERE id = $1 AND status = 'completed'
RETURNING id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
`

func (r *PurchaseRepo) MarkRefunded(ctx context.Context, purchaseID uuid.UUID) (models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, markRefunded, purchaseID)
	return collectPurchase(rows)
}

const listStalePending = `-- name: ListStalePendingPurchases
SELECT id, created_at, completed_at, user_id, plan_id, session_id, payment_id, status, amount, credits_added
FROM purchases
WHERE status = 'pending' AND created_at < $1
ORDER BY created_at
LIMIT $2
`

func (r *PurchaseRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Purchase, error) {
	rows, _ := r.DB.Query(ctx, listStalePending, olderThan, limit)
	list, err := pgx.CollectRows(rows, rowToPurchase)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return list, nil
}

func collectPurchase(rows pgx.Rows) (models.Purchase, error) {
	p, err := pgx.CollectOneRow(rows, rowToPurchase)

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return p, apperrors.ErrPurchaseNotFound
	default:
		return p, fmt.Errorf("db error: %w", err)
	}
}

func rowToPurchase(row pgx.CollectableRow) (models.Purchase, error) {
	var p models.Purchase
	err := row.Scan(&p.ID, &p.CreatedAt, &p.CompletedAt, &p.UserID, &p.PlanID, &p.SessionID, &p.PaymentID, &p.Status, &p.Amount, &p.CreditsAdded)
	return p, err
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pixelift/pixelift/internal/models"
)

type TransactionRepo struct {
	DB DBTX
}

const appendTransaction = `-- name: AppendTransaction
INSERT INTO transactions (id, created_at, user_id, type, amount, balance_after, description, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, user_id, type, amount, balance_after, description, metadata
`

func (r *TransactionRepo) Append(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, appendTransaction,
		t.ID, t.CreatedAt, t.UserID, t.Type, t.Amount, t.BalanceAfter, t.Description, t.Metadata)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)
	if err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

const listTransactions = `-- name: ListTransactions
SELECT id, created_at, user_id, type, amount, balance_after, description, metadata
FROM transactions
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

func (r *TransactionRepo) List(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactions, userID, limit, offset)
	list, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return list, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Description, &t.Metadata)
	return t, err
}

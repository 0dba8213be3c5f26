package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/models"
)

type PlanRepo struct {
	DB DBTX
}

const getActivePlan = `-- name: GetActivePlan
SELECT id, name, price, credits, billing_interval, active FROM plans
WHERE id = $1 AND active
`

func (r *PlanRepo) GetActivePlan(ctx context.Context, planID string) (models.Plan, error) {
	rows, _ := r.DB.Query(ctx, getActivePlan, planID)
	plan, err := pgx.CollectOneRow(rows, rowToPlan)

	switch {
	case err == nil:
		return plan, nil
	case errors.Is(err, pgx.ErrNoRows):
		return plan, apperrors.ErrPlanNotFound
	default:
		return plan, fmt.Errorf("db error: %w", err)
	}
}

const listActivePlans = `-- name: ListActivePlans
SELECT id, name, price, credits, billing_interval, active FROM plans
WHERE active
ORDER BY price
`

func (r *PlanRepo) ListActivePlans(ctx context.Context) ([]models.Plan, error) {
	rows, _ := r.DB.Query(ctx, listActivePlans)
	plans, err := pgx.CollectRows(rows, rowToPlan)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return plans, nil
}

func rowToPlan(row pgx.CollectableRow) (models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Credits, &p.BillingInterval, &p.Active)
	return p, err
}

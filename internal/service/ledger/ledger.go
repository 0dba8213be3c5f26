// Package ledger owns the prepaid-credit balance and its append-only
// audit log. Every mutation goes through a conditional update plus a
// transaction append inside one database transaction, so balances can
// not go negative and the log always sums to the balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/metrics"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type LedgerService struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, l logger.Logger) *LedgerService {
	return &LedgerService{
		storage: storage,
		logger:  l,
	}
}

// GetBalance returns the user's credit balance, provisioning the row
// with the signup bonus on first access. Concurrent first calls race on
// the user_id unique constraint; the loser re-reads instead of failing.
func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	balance, err := s.storage.Balance().GetBalance(ctx, userID)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, apperrors.ErrBalanceNotFound):
		return s.provision(ctx, userID)
	default:
		return balance, fmt.Errorf("failed to get balance: %w", err)
	}
}

func (s *LedgerService) provision(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	var balance models.Balance
	var created bool

	err := s.storage.InTx(ctx, func(ts repository.Storage) error {
		var err error
		balance, created, err = Provision(ctx, ts, userID)
		return err
	})
	if err != nil {
		return balance, err
	}

	if created {
		s.logger.Info("Balance provisioned", "user_id", userID, "bonus", models.SignupBonusCredits)
	}
	return balance, nil
}

// Deduct debits amount credits and appends the matching audit record.
// Fails with *apperrors.InsufficientCreditsError and no mutation when
// the balance does not cover the amount.
func (s *LedgerService) Deduct(ctx context.Context, userID uuid.UUID, amount int64, txType string, description string, metadata map[string]string) (models.Balance, error) {
	var balance models.Balance

	if amount <= 0 {
		return balance, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}
	if txType == "" {
		txType = models.TransactionTypeUsage
	}

	// Make sure the balance row exists so a brand-new user gets the
	// signup bonus before the debit is checked against it
	if _, err := s.GetBalance(ctx, userID); err != nil {
		return balance, err
	}

	err := s.storage.InTx(ctx, func(ts repository.Storage) error {
		var err error
		balance, _, err = Debit(ctx, ts, userID, amount, txType, description, metadata)
		return err
	})
	if err != nil {
		return balance, err
	}

	s.logger.Info("Credits deducted", "user_id", userID, "amount", amount, "type", txType, "balance", balance.Balance)
	return balance, nil
}

// ListTransactions returns a page of the user's audit log, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.storage.Transaction().List(ctx, userID, limit, offset)
}

// Provision, Credit and Debit mutate a balance and append the audit
// record through the given storage, which is expected to be
// transaction-bound. They are shared with the billing service so
// purchase completion can run in the same database transaction as the
// purchase status flip.

// Provision makes sure the user's balance row exists, seeding it with
// the signup bonus and the matching audit record on first creation.
// The conflict-free insert keeps concurrent callers from failing each
// other; the loser reads back the winner's row.
func Provision(ctx context.Context, s repository.Storage, userID uuid.UUID) (models.Balance, bool, error) {
	balance, created, err := s.Balance().EnsureBalance(ctx, userID, models.SignupBonusCredits)
	if err != nil {
		return balance, false, fmt.Errorf("failed to provision balance: %w", err)
	}
	if !created {
		return balance, false, nil
	}

	_, err = s.Transaction().Append(ctx, models.Transaction{
		UserID:       userID,
		Type:         models.TransactionTypeSignupBonus,
		Amount:       models.SignupBonusCredits,
		BalanceAfter: balance.Balance,
		Description:  "Signup bonus",
	})
	if err != nil {
		return balance, true, fmt.Errorf("failed to append signup bonus transaction: %w", err)
	}

	metrics.CreditsGranted.WithLabelValues(models.TransactionTypeSignupBonus).Add(models.SignupBonusCredits)
	return balance, true, nil
}

func Credit(ctx context.Context, s repository.Storage, userID uuid.UUID, amount int64, txType string, description string, metadata map[string]string) (models.Balance, models.Transaction, error) {
	// A purchase may settle before the user ever reads their balance,
	// so the row is not guaranteed to exist yet
	if _, _, err := Provision(ctx, s, userID); err != nil {
		return models.Balance{}, models.Transaction{}, err
	}

	balance, err := s.Balance().AddCredits(ctx, userID, amount)
	if err != nil {
		return balance, models.Transaction{}, fmt.Errorf("failed to credit balance: %w", err)
	}

	t, err := s.Transaction().Append(ctx, models.Transaction{
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balance.Balance,
		Description:  description,
		Metadata:     metadata,
	})
	if err != nil {
		return balance, t, fmt.Errorf("failed to append transaction: %w", err)
	}

	metrics.CreditsGranted.WithLabelValues(txType).Add(float64(amount))
	return balance, t, nil
}

func Debit(ctx context.Context, s repository.Storage, userID uuid.UUID, amount int64, txType string, description string, metadata map[string]string) (models.Balance, models.Transaction, error) {
	balance, err := s.Balance().DeductCredits(ctx, userID, amount)
	if err != nil {
		var insufficient *apperrors.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			return balance, models.Transaction{}, err
		}
		return balance, models.Transaction{}, fmt.Errorf("failed to debit balance: %w", err)
	}

	t, err := s.Transaction().Append(ctx, models.Transaction{
		UserID:       userID,
		Type:         txType,
		Amount:       -amount,
		BalanceAfter: balance.Balance,
		Description:  description,
		Metadata:     metadata,
	})
	if err != nil {
		return balance, t, fmt.Errorf("failed to append transaction: %w", err)
	}

	metrics.CreditsSpent.WithLabelValues(txType).Add(float64(amount))
	return balance, t, nil
}

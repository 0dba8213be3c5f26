// Package removal runs the paid "Superior" background-removal path:
// stage the image, call the inference API, charge the fixed credit cost.
package removal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/inference"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
)

type inferenceClient interface {
	RemoveBackground(ctx context.Context, imageURL string) (inference.Removal, error)
}

type blobStore interface {
	Put(ctx context.Context, filename string, contentType string, data []byte) (string, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	Deduct(ctx context.Context, userID uuid.UUID, amount int64, txType string, description string, metadata map[string]string) (models.Balance, error)
}

type RemovalService struct {
	inference inferenceClient
	blobs     blobStore
	ledger    ledgerService
	logger    logger.Logger
}

func NewService(inference inferenceClient, blobs blobStore, ledger ledgerService, l logger.Logger) *RemovalService {
	return &RemovalService{
		inference: inference,
		blobs:     blobs,
		ledger:    ledger,
		logger:    l,
	}
}

type Result struct {
	ResultURL    string
	Width        int
	Height       int
	CreditsSpent int64
	NewBalance   int64
}

// Stage uploads raw image bytes to the blob store so the inference API
// can fetch them by URL
func (s *RemovalService) Stage(ctx context.Context, filename string, contentType string, data []byte) (string, error) {
	url, err := s.blobs.Put(ctx, filename, contentType, data)
	if err != nil {
		return "", fmt.Errorf("failed to stage image: %w", err)
	}
	return url, nil
}

// Remove runs premium background removal for the image and debits the
// fixed credit cost. The balance is checked up front so an empty wallet
// never reaches the paid API, and the debit lands after a successful
// call so a failed inference costs nothing.
func (s *RemovalService) Remove(ctx context.Context, user models.User, imageURL string, imageName string) (Result, error) {
	var result Result

	balance, err := s.ledger.GetBalance(ctx, user.ID)
	if err != nil {
		return result, err
	}
	if balance.Balance < models.PremiumRemovalCost {
		return result, &apperrors.InsufficientCreditsError{Available: balance.Balance, Requested: models.PremiumRemovalCost}
	}

	removal, err := s.inference.RemoveBackground(ctx, imageURL)
	if err != nil {
		return result, fmt.Errorf("background removal failed: %w", err)
	}

	result = Result{
		ResultURL:    removal.ResultURL,
		Width:        removal.Width,
		Height:       removal.Height,
		CreditsSpent: models.PremiumRemovalCost,
	}

	balance, err = s.ledger.Deduct(ctx, user.ID, models.PremiumRemovalCost,
		models.TransactionTypeUsagePremium,
		fmt.Sprintf("Superior model - %s", imageName),
		map[string]string{"image": imageName, "result_url": removal.ResultURL})

	switch {
	case err == nil:
		result.NewBalance = balance.Balance
		return result, nil
	default:
		// The user already has the result; a concurrent spend that ate
		// the pre-checked credits should not take it away. Charge noted
		// as lost, result kept.
		var insufficient *apperrors.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.logger.Warn("Removal done but credits gone, skipping charge", "user_id", user.ID, "available", insufficient.Available)
			result.CreditsSpent = 0
			result.NewBalance = insufficient.Available
			return result, nil
		}
		return result, err
	}
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/metrics"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/payment"
)

// StalePurchases lists pending purchases the client never verified,
// oldest first. Fed to the reconciler.
func (s *BillingService) StalePurchases(ctx context.Context, olderThan time.Time, limit int) ([]models.Purchase, error) {
	return s.storage.Purchase().ListStalePending(ctx, olderThan, limit)
}

// Reconcile settles one stale pending purchase from the provider's
// point of view. Still-pending payments are left alone; completed and
// failed ones go through the same idempotent transitions as the verify
// and webhook paths, so racing with either of them is harmless.
func (s *BillingService) Reconcile(ctx context.Context, purchase models.Purchase) error {
	providerID := purchase.PaymentID
	if providerID == "" {
		providerID = purchase.SessionID
	}

	p, err := s.provider.GetPayment(ctx, providerID)
	if err != nil {
		return fmt.Errorf("failed to get payment status: %w", err)
	}

	switch p.Status {
	case payment.StatusCompleted:
		_, err := s.complete(ctx, purchase, "", purchase.CreditsAdded)
		if errors.Is(err, apperrors.ErrPurchaseNotFound) {
			return nil
		}
		return err

	case payment.StatusFailed:
		_, err := s.storage.Purchase().MarkFailed(ctx, purchase.ID)
		switch {
		case err == nil:
			s.logger.Info("Stale purchase failed", "purchase_id", purchase.ID)
			metrics.PurchasesFailed.Inc()
			return nil
		case errors.Is(err, apperrors.ErrPurchaseNotFound):
			return nil
		default:
			return fmt.Errorf("failed to mark purchase failed: %w", err)
		}

	default:
		s.logger.Debug("Purchase still pending at provider", "purchase_id", purchase.ID, "status", p.Status)
		return nil
	}
}

// Package billing drives the purchase lifecycle: checkout creation,
// payment verification and webhook processing. The synchronous verify
// path and the provider webhook race to complete the same purchase;
// the storage-level "transition only from pending" guard makes whoever
// arrives second a no-op.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/metrics"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/payment"
	"github.com/pixelift/pixelift/internal/repository"
	"github.com/pixelift/pixelift/internal/service/ledger"
)

type paymentClient interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error)
	GetPayment(ctx context.Context, paymentID string) (payment.Payment, error)
}

type BillingService struct {
	storage  repository.Storage
	provider paymentClient
	logger   logger.Logger
}

func NewService(storage repository.Storage, provider paymentClient, l logger.Logger) *BillingService {
	return &BillingService{
		storage:  storage,
		provider: provider,
		logger:   l,
	}
}

type CheckoutResult struct {
	PurchaseID  uuid.UUID
	SessionID   string
	CheckoutURL string
}

// CreateCheckout opens a provider checkout session for the plan and
// records a pending purchase. The metadata attached to the session is
// everything the webhook needs later, no database join required.
func (s *BillingService) CreateCheckout(ctx context.Context, user models.User, planID string) (CheckoutResult, error) {
	var result CheckoutResult

	plan, err := s.storage.Plan().GetActivePlan(ctx, planID)
	if err != nil {
		return result, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		CustomerEmail:   user.Email,
		CustomerName:    user.Name,
		ProductName:     plan.Name,
		Amount:          plan.Price,
		BillingInterval: plan.BillingInterval,
		Metadata: map[string]string{
			"user_id":          user.ID.String(),
			"plan_id":          plan.ID,
			"credits":          fmt.Sprintf("%d", plan.Credits),
			"billing_interval": plan.BillingInterval,
		},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create checkout session: %w", err)
	}

	purchase, err := s.storage.Purchase().Create(ctx, models.Purchase{
		UserID:       user.ID,
		PlanID:       plan.ID,
		SessionID:    session.SessionID,
		Amount:       plan.Price,
		CreditsAdded: plan.Credits,
	})
	if err != nil {
		// The session exists at the provider but we have no local record
		// of it. Fail the checkout; the session id in the log is enough
		// to reconcile by hand if the user actually pays.
		s.logger.Error("Checkout session created but purchase insert failed",
			"session_id", session.SessionID, "user_id", user.ID, "plan_id", plan.ID, "error", err)
		return result, fmt.Errorf("failed to record purchase: %w", err)
	}

	s.logger.Info("Checkout created", "purchase_id", purchase.ID, "session_id", session.SessionID, "plan_id", plan.ID)
	return CheckoutResult{
		PurchaseID:  purchase.ID,
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

type VerifyResult struct {
	CreditsAdded int64
	NewBalance   int64
}

// Verify is the client-initiated completion path: find the most recent
// pending purchase for the (user, plan) pair, ask the provider whether
// the payment settled, and if so grant the credits. A purchase already
// completed by the webhook surfaces as ErrPurchaseNotFound.
func (s *BillingService) Verify(ctx context.Context, userID uuid.UUID, planID string) (VerifyResult, error) {
	var result VerifyResult

	purchase, err := s.storage.Purchase().LatestPending(ctx, userID, planID)
	if err != nil {
		return result, err
	}

	// The session id is the only provider identifier known before the
	// webhook delivers the final payment id
	providerID := purchase.PaymentID
	if providerID == "" {
		providerID = purchase.SessionID
	}

	p, err := s.provider.GetPayment(ctx, providerID)
	if err != nil {
		return result, fmt.Errorf("failed to get payment status: %w", err)
	}
	if p.Status != payment.StatusCompleted {
		return result, &apperrors.PaymentNotCompletedError{Status: p.Status}
	}

	balance, err := s.complete(ctx, purchase, "", purchase.CreditsAdded)
	if err != nil {
		return result, err
	}

	return VerifyResult{
		CreditsAdded: purchase.CreditsAdded,
		NewBalance:   balance.Balance,
	}, nil
}

// HandleEvent processes one verified webhook event. It never fails on
// events that cannot be acted upon (missing metadata, already processed
// purchases): returning an error would make the provider redeliver an
// event we will never handle differently.
func (s *BillingService) HandleEvent(ctx context.Context, event payment.Event) error {
	switch event.Type {
	case payment.EventPaymentSucceeded:
		return s.handleSucceeded(ctx, event)
	case payment.EventPaymentFailed:
		return s.handleFailed(ctx, event)
	case payment.EventPaymentRefunded:
		return s.handleRefunded(ctx, event)
	default:
		s.logger.Debug("Ignoring webhook event", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

func (s *BillingService) handleSucceeded(ctx context.Context, event payment.Event) error {
	userID, planID, ok := s.eventSubject(event)
	if !ok {
		return nil
	}

	purchase, err := s.storage.Purchase().LatestPending(ctx, userID, planID)
	switch {
	case errors.Is(err, apperrors.ErrPurchaseNotFound):
		// Already completed by the verify path or a duplicate delivery
		s.logger.Info("No pending purchase for webhook, assuming processed", "user_id", userID, "plan_id", planID, "event_id", event.ID)
		return nil
	case err != nil:
		return fmt.Errorf("failed to find pending purchase: %w", err)
	}

	// The event is self-contained: the credits it carries were pinned
	// into the session metadata at checkout and came back under a valid
	// signature, so they win over the locally recorded amount
	credits := purchase.CreditsAdded
	if raw := event.Metadata["credits"]; raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || parsed <= 0 {
			s.logger.Warn("Webhook event with malformed credits metadata, using recorded purchase",
				"event_id", event.ID, "credits", raw, "purchase_id", purchase.ID)
		} else {
			credits = parsed
		}
	}

	_, err = s.complete(ctx, purchase, event.PaymentID, credits)
	if errors.Is(err, apperrors.ErrPurchaseNotFound) {
		// Lost the race after the pending lookup, nothing left to do
		return nil
	}
	return err
}

func (s *BillingService) handleFailed(ctx context.Context, event payment.Event) error {
	userID, planID, ok := s.eventSubject(event)
	if !ok {
		return nil
	}

	purchase, err := s.storage.Purchase().LatestPending(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPurchaseNotFound) {
			return nil
		}
		return fmt.Errorf("failed to find pending purchase: %w", err)
	}

	_, err = s.storage.Purchase().MarkFailed(ctx, purchase.ID)
	switch {
	case err == nil:
		s.logger.Info("Purchase failed", "purchase_id", purchase.ID, "event_id", event.ID)
		metrics.PurchasesFailed.Inc()
		return nil
	case errors.Is(err, apperrors.ErrPurchaseNotFound):
		return nil
	default:
		return fmt.Errorf("failed to mark purchase failed: %w", err)
	}
}

// handleRefunded reverses a completed purchase: flips it to refunded and
// debits back the granted credits. The reversal is capped at the current
// balance so the non-negative invariant survives users who already spent
// part of the grant; the actually reversed amount is what gets logged.
func (s *BillingService) handleRefunded(ctx context.Context, event payment.Event) error {
	purchase, err := s.storage.Purchase().GetByPaymentID(ctx, event.PaymentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPurchaseNotFound) {
			s.logger.Warn("Refund webhook for unknown payment", "payment_id", event.PaymentID, "event_id", event.ID)
			return nil
		}
		return fmt.Errorf("failed to find purchase for refund: %w", err)
	}

	err = s.storage.InTx(ctx, func(ts repository.Storage) error {
		p, err := ts.Purchase().MarkRefunded(ctx, purchase.ID)
		if err != nil {
			return err
		}

		balance, err := ts.Balance().GetBalance(ctx, p.UserID)
		if err != nil {
			return err
		}

		reversal := min(p.CreditsAdded, balance.Balance)
		if reversal == 0 {
			return nil
		}

		_, _, err = ledger.Debit(ctx, ts, p.UserID, reversal, models.TransactionTypeRefund,
			fmt.Sprintf("Refund of %s plan purchase", p.PlanID),
			map[string]string{
				"purchase_id": p.ID.String(),
				"payment_id":  p.PaymentID,
				"granted":     fmt.Sprintf("%d", p.CreditsAdded),
			})
		return err
	})

	switch {
	case err == nil:
		s.logger.Info("Purchase refunded", "purchase_id", purchase.ID, "event_id", event.ID)
		return nil
	case errors.Is(err, apperrors.ErrPurchaseNotFound):
		// Not in completed state (anymore), duplicate refund delivery
		return nil
	default:
		return fmt.Errorf("failed to process refund: %w", err)
	}
}

// complete performs the single idempotent purchase-completion unit:
// conditional pending -> completed flip, balance credit and audit append
// in one database transaction. Whoever loses the status-flip race gets
// ErrPurchaseNotFound and must treat it as "already done".
func (s *BillingService) complete(ctx context.Context, purchase models.Purchase, paymentID string, credits int64) (models.Balance, error) {
	var balance models.Balance

	err := s.storage.InTx(ctx, func(ts repository.Storage) error {
		p, err := ts.Purchase().MarkCompleted(ctx, purchase.ID, paymentID)
		if err != nil {
			return err
		}

		balance, _, err = ledger.Credit(ctx, ts, p.UserID, credits, models.TransactionTypePurchase,
			fmt.Sprintf("Purchase of %s plan", p.PlanID),
			map[string]string{
				"purchase_id": p.ID.String(),
				"plan_id":     p.PlanID,
				"session_id":  p.SessionID,
				"payment_id":  p.PaymentID,
			})
		return err
	})
	if err != nil {
		return balance, err
	}

	s.logger.Info("Purchase completed", "purchase_id", purchase.ID, "credits", credits, "balance", balance.Balance)
	metrics.PurchasesCompleted.Inc()
	return balance, nil
}

// eventSubject extracts the (user, plan) pair from event metadata.
// Malformed events are logged and skipped, never retried.
func (s *BillingService) eventSubject(event payment.Event) (uuid.UUID, string, bool) {
	rawUser, planID := event.Metadata["user_id"], event.Metadata["plan_id"]
	if rawUser == "" || planID == "" {
		s.logger.Error("Webhook event missing metadata", "event_id", event.ID, "type", event.Type)
		return uuid.Nil, "", false
	}

	userID, err := uuid.Parse(rawUser)
	if err != nil {
		s.logger.Error("Webhook event with malformed user id", "event_id", event.ID, "user_id", rawUser)
		return uuid.Nil, "", false
	}

	return userID, planID, true
}

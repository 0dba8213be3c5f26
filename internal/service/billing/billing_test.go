package billing

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/payment"
	"github.com/pixelift/pixelift/internal/repository"
	"github.com/pixelift/pixelift/internal/repository/postgres"
	"github.com/pixelift/pixelift/internal/testutil"
)

// fakeProvider is an in-memory payment provider: sessions are created
// with predictable ids and payment statuses are scripted per test.
type fakeProvider struct {
	sessions int
	statuses map[string]string

	checkoutErr error
	paymentErr  error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	if f.checkoutErr != nil {
		return payment.CheckoutSession{}, f.checkoutErr
	}

	f.sessions++
	id := fmt.Sprintf("cs_%d", f.sessions)
	return payment.CheckoutSession{
		SessionID:   id,
		CheckoutURL: "https://pay.example.com/" + id,
	}, nil
}

func (f *fakeProvider) GetPayment(ctx context.Context, paymentID string) (payment.Payment, error) {
	if f.paymentErr != nil {
		return payment.Payment{}, f.paymentErr
	}

	status, ok := f.statuses[paymentID]
	if !ok {
		return payment.Payment{}, payment.NewError(payment.CodeNotFound, fmt.Errorf("payment %s not found", paymentID))
	}
	return payment.Payment{ID: paymentID, Status: status}, nil
}

func TestBillingService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type fixture struct {
		storage  repository.Storage
		provider *fakeProvider
		service  *BillingService
		user     models.User
	}

	inTx := func(t *testing.T, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			provider := &fakeProvider{statuses: map[string]string{}}
			service := NewService(storage, provider, logger.NewNoOp())

			user, err := storage.User().CreateUser(t.Context(), "user@example.com", "User", "hash")
			require.NoError(t, err)
			_, err = storage.Balance().CreateBalance(t.Context(), user.ID, models.SignupBonusCredits)
			require.NoError(t, err)

			fn(fixture{storage: storage, provider: provider, service: service, user: user})
		})
	}

	succeededEvent := func(f fixture, paymentID string) payment.Event {
		return payment.Event{
			ID:        "evt_" + uuid.NewString(),
			Type:      payment.EventPaymentSucceeded,
			PaymentID: paymentID,
			Metadata: map[string]string{
				"user_id":          f.user.ID.String(),
				"plan_id":          "starter",
				"credits":          "100",
				"billing_interval": models.BillingIntervalOneTime,
			},
		}
	}

	t.Run("CreateCheckout", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(f fixture) {
				result, err := f.service.CreateCheckout(t.Context(), f.user, "starter")

				require.NoError(t, err)
				require.NotZero(t, result.PurchaseID)
				require.Equal(t, "cs_1", result.SessionID)
				require.Equal(t, "https://pay.example.com/cs_1", result.CheckoutURL)

				purchase, err := f.storage.Purchase().LatestPending(t.Context(), f.user.ID, "starter")
				require.NoError(t, err)
				require.Equal(t, result.PurchaseID, purchase.ID)
				require.Equal(t, "cs_1", purchase.SessionID)
				require.Equal(t, int64(100), purchase.CreditsAdded, "starter plan grants 100 credits")
				require.Empty(t, purchase.PaymentID)
			})
		})

		t.Run("unknown plan", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "no-such-plan")

				require.ErrorIs(t, err, apperrors.ErrPlanNotFound)
			})
		})

		t.Run("provider failure", func(t *testing.T) {
			inTx(t, func(f fixture) {
				f.provider.checkoutErr = payment.NewError(payment.CodeUnknown, fmt.Errorf("provider down"))

				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")

				require.Error(t, err, "provider failure must fail the checkout")

				_, err = f.storage.Purchase().LatestPending(t.Context(), f.user.ID, "starter")
				require.ErrorIs(t, err, apperrors.ErrPurchaseNotFound, "no purchase should be recorded")
			})
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("payment completed", func(t *testing.T) {
			inTx(t, func(f fixture) {
				checkout, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				f.provider.statuses[checkout.SessionID] = payment.StatusCompleted

				result, err := f.service.Verify(t.Context(), f.user.ID, "starter")

				require.NoError(t, err)
				require.Equal(t, int64(100), result.CreditsAdded)
				require.Equal(t, int64(models.SignupBonusCredits+100), result.NewBalance)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, result.NewBalance, balance.Balance)

				transactions, err := f.storage.Transaction().List(t.Context(), f.user.ID, 10, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 1)
				require.Equal(t, models.TransactionTypePurchase, transactions[0].Type)
				require.Equal(t, int64(100), transactions[0].Amount)
			})
		})

		t.Run("payment still pending", func(t *testing.T) {
			inTx(t, func(f fixture) {
				checkout, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				f.provider.statuses[checkout.SessionID] = payment.StatusPending

				_, err = f.service.Verify(t.Context(), f.user.ID, "starter")

				var notCompleted *apperrors.PaymentNotCompletedError
				require.ErrorAs(t, err, &notCompleted)
				require.Equal(t, payment.StatusPending, notCompleted.Status)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits), balance.Balance, "no credits granted for pending payment")
			})
		})

		t.Run("no pending purchase", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.Verify(t.Context(), f.user.ID, "starter")

				require.ErrorIs(t, err, apperrors.ErrPurchaseNotFound)
			})
		})

		t.Run("verify twice grants once", func(t *testing.T) {
			inTx(t, func(f fixture) {
				checkout, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				f.provider.statuses[checkout.SessionID] = payment.StatusCompleted

				_, err = f.service.Verify(t.Context(), f.user.ID, "starter")
				require.NoError(t, err)

				_, err = f.service.Verify(t.Context(), f.user.ID, "starter")
				require.ErrorIs(t, err, apperrors.ErrPurchaseNotFound, "second verify finds nothing pending")

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance, "credits must be granted exactly once")
			})
		})
	})

	t.Run("HandleEvent", func(t *testing.T) {
		t.Run("payment succeeded", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)

				err = f.service.HandleEvent(t.Context(), succeededEvent(f, "pay_1"))

				require.NoError(t, err)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance)

				purchase, err := f.storage.Purchase().GetByPaymentID(t.Context(), "pay_1")
				require.NoError(t, err)
				require.Equal(t, models.PurchaseStatusCompleted, purchase.Status)
				require.Equal(t, "pay_1", purchase.PaymentID, "webhook should backfill the payment id")
			})
		})

		t.Run("settles purchase before balance is ever read", func(t *testing.T) {
			inTx(t, func(f fixture) {
				// Register-and-buy-immediately path: nothing provisioned
				// the balance row for this user yet
				user, err := f.storage.User().CreateUser(t.Context(), "eager@example.com", "Eager", "hash")
				require.NoError(t, err)

				_, err = f.service.CreateCheckout(t.Context(), user, "starter")
				require.NoError(t, err)

				event := succeededEvent(f, "pay_1")
				event.Metadata["user_id"] = user.ID.String()

				err = f.service.HandleEvent(t.Context(), event)
				require.NoError(t, err, "completion must not depend on a pre-existing balance row")

				balance, err := f.storage.Balance().GetBalance(t.Context(), user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance, "signup bonus and purchase credits should both land")

				transactions, err := f.storage.Transaction().List(t.Context(), user.ID, 10, 0)
				require.NoError(t, err)
				require.Len(t, transactions, 2)
				require.Equal(t, models.TransactionTypePurchase, transactions[0].Type, "newest first")
				require.Equal(t, models.TransactionTypeSignupBonus, transactions[1].Type)

				purchase, err := f.storage.Purchase().GetByPaymentID(t.Context(), "pay_1")
				require.NoError(t, err)
				require.Equal(t, models.PurchaseStatusCompleted, purchase.Status)
			})
		})

		t.Run("credits come from event metadata", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)

				event := succeededEvent(f, "pay_1")
				event.Metadata["credits"] = "250"

				err = f.service.HandleEvent(t.Context(), event)
				require.NoError(t, err)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+250), balance.Balance, "signed metadata amount wins over the recorded row")

				transactions, err := f.storage.Transaction().List(t.Context(), f.user.ID, 10, 0)
				require.NoError(t, err)
				require.Equal(t, int64(250), transactions[0].Amount)
			})
		})

		t.Run("malformed credits metadata falls back to purchase row", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)

				event := succeededEvent(f, "pay_1")
				event.Metadata["credits"] = "lots"

				err = f.service.HandleEvent(t.Context(), event)
				require.NoError(t, err)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance, "unparsable metadata should not block completion")
			})
		})

		t.Run("duplicate delivery is a no-op", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)

				event := succeededEvent(f, "pay_1")
				require.NoError(t, f.service.HandleEvent(t.Context(), event))
				require.NoError(t, f.service.HandleEvent(t.Context(), event), "duplicate delivery must not fail")

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance, "credits must be granted exactly once")
			})
		})

		t.Run("webhook after verify is a no-op", func(t *testing.T) {
			inTx(t, func(f fixture) {
				checkout, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				f.provider.statuses[checkout.SessionID] = payment.StatusCompleted

				_, err = f.service.Verify(t.Context(), f.user.ID, "starter")
				require.NoError(t, err)

				err = f.service.HandleEvent(t.Context(), succeededEvent(f, "pay_1"))
				require.NoError(t, err)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits+100), balance.Balance, "whoever arrives second must not grant again")
			})
		})

		t.Run("payment failed", func(t *testing.T) {
			inTx(t, func(f fixture) {
				checkout, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)

				event := succeededEvent(f, "pay_1")
				event.Type = payment.EventPaymentFailed

				err = f.service.HandleEvent(t.Context(), event)
				require.NoError(t, err)

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits), balance.Balance, "failed payment grants nothing")

				_, err = f.storage.Purchase().LatestPending(t.Context(), f.user.ID, "starter")
				require.ErrorIs(t, err, apperrors.ErrPurchaseNotFound, "purchase should be failed, not pending")

				// Verify after the failure finds nothing to complete
				f.provider.statuses[checkout.SessionID] = payment.StatusFailed
				_, err = f.service.Verify(t.Context(), f.user.ID, "starter")
				require.ErrorIs(t, err, apperrors.ErrPurchaseNotFound)
			})
		})

		t.Run("payment refunded", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				require.NoError(t, f.service.HandleEvent(t.Context(), succeededEvent(f, "pay_1")))

				refund := payment.Event{
					ID:        "evt_refund",
					Type:      payment.EventPaymentRefunded,
					PaymentID: "pay_1",
				}
				require.NoError(t, f.service.HandleEvent(t.Context(), refund))

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits), balance.Balance, "refund should take the granted credits back")

				purchase, err := f.storage.Purchase().GetByPaymentID(t.Context(), "pay_1")
				require.NoError(t, err)
				require.Equal(t, models.PurchaseStatusRefunded, purchase.Status)

				transactions, err := f.storage.Transaction().List(t.Context(), f.user.ID, 10, 0)
				require.NoError(t, err)
				require.Equal(t, models.TransactionTypeRefund, transactions[0].Type)
				require.Equal(t, int64(-100), transactions[0].Amount)
			})
		})

		t.Run("refund capped at current balance", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				require.NoError(t, f.service.HandleEvent(t.Context(), succeededEvent(f, "pay_1")))

				// Spend most of the grant before the refund arrives
				_, err = f.storage.Balance().DeductCredits(t.Context(), f.user.ID, 95)
				require.NoError(t, err)

				refund := payment.Event{ID: "evt_refund", Type: payment.EventPaymentRefunded, PaymentID: "pay_1"}
				require.NoError(t, f.service.HandleEvent(t.Context(), refund))

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Zero(t, balance.Balance, "reversal is capped, balance never goes negative")
			})
		})

		t.Run("duplicate refund is a no-op", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.service.CreateCheckout(t.Context(), f.user, "starter")
				require.NoError(t, err)
				require.NoError(t, f.service.HandleEvent(t.Context(), succeededEvent(f, "pay_1")))

				refund := payment.Event{ID: "evt_refund", Type: payment.EventPaymentRefunded, PaymentID: "pay_1"}
				require.NoError(t, f.service.HandleEvent(t.Context(), refund))
				require.NoError(t, f.service.HandleEvent(t.Context(), refund))

				balance, err := f.storage.Balance().GetBalance(t.Context(), f.user.ID)
				require.NoError(t, err)
				require.Equal(t, int64(models.SignupBonusCredits), balance.Balance, "second refund must not debit again")
			})
		})

		t.Run("refund for unknown payment", func(t *testing.T) {
			inTx(t, func(f fixture) {
				refund := payment.Event{ID: "evt_refund", Type: payment.EventPaymentRefunded, PaymentID: "pay_unknown"}

				require.NoError(t, f.service.HandleEvent(t.Context(), refund), "unknown payment id must be acknowledged, not retried")
			})
		})

		t.Run("event with missing metadata", func(t *testing.T) {
			inTx(t, func(f fixture) {
				event := payment.Event{ID: "evt_bad", Type: payment.EventPaymentSucceeded, PaymentID: "pay_1"}

				require.NoError(t, f.service.HandleEvent(t.Context(), event), "malformed event must be acknowledged, not retried")
			})
		})

		t.Run("unknown event type ignored", func(t *testing.T) {
			inTx(t, func(f fixture) {
				event := payment.Event{ID: "evt_other", Type: "customer.updated"}

				require.NoError(t, f.service.HandleEvent(t.Context(), event))
			})
		})
	})
}

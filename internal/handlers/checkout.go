package handlers

import (
	"errors"
	"net/http"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/handlers/render"
	"github.com/pixelift/pixelift/internal/handlers/userctx"
	"github.com/pixelift/pixelift/internal/logger"
)

func handleListPlans(planService planService, l logger.Logger) http.Handler {
	type plan struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Price           string `json:"price"`
		Credits         int64  `json:"credits"`
		BillingInterval string `json:"billing_interval"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := planService.ListActivePlans(r.Context())
		if err != nil {
			l.Error("Failed to list plans", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		plans := make([]plan, 0, len(list))
		for _, p := range list {
			plans = append(plans, plan{
				ID:              p.ID,
				Name:            p.Name,
				Price:           p.Price.StringFixed(2),
				Credits:         p.Credits,
				BillingInterval: p.BillingInterval,
			})
		}
		render.JSON(w, plans)
	})
}

func handleCreateCheckout(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		PlanID string `json:"plan_id" validate:"required"`
	}

	type response struct {
		CheckoutURL string `json:"checkout_url"`
		SessionID   string `json:"session_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := billingService.CreateCheckout(r.Context(), user, data.PlanID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, response{
				CheckoutURL: result.CheckoutURL,
				SessionID:   result.SessionID,
			}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrPlanNotFound):
			render.ServiceError(w, "Plan not found", http.StatusNotFound)
		default:
			l.Error("Failed to create checkout", "error", err, "plan_id", data.PlanID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleVerifyCheckout(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		PlanID string `json:"plan_id" validate:"required"`
	}

	type response struct {
		CreditsAdded int64 `json:"credits_added"`
		NewBalance   int64 `json:"new_balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := billingService.Verify(r.Context(), user.ID, data.PlanID)

		var notCompleted *apperrors.PaymentNotCompletedError
		switch {
		case err == nil:
			render.JSON(w, response{
				CreditsAdded: result.CreditsAdded,
				NewBalance:   result.NewBalance,
			})
		case errors.Is(err, apperrors.ErrPurchaseNotFound):
			render.ServiceError(w, "No pending purchase found", http.StatusNotFound)
		case errors.As(err, &notCompleted):
			render.ServiceError(w, "Payment not completed yet", http.StatusConflict)
		default:
			l.Error("Failed to verify checkout", "error", err, "plan_id", data.PlanID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

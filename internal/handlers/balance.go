package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/handlers/render"
	"github.com/pixelift/pixelift/internal/handlers/userctx"
	"github.com/pixelift/pixelift/internal/logger"
)

func handleUserBalance(ledgerService ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Balance int64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := ledgerService.GetBalance(r.Context(), user.ID)

		switch err {
		case nil:
			render.JSON(w, response{Balance: balance.Balance})
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleDeduct(ledgerService ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount      int64             `json:"amount" validate:"required,gt=0"`
		Description string            `json:"description" validate:"max=500"`
		Metadata    map[string]string `json:"metadata"`
	}

	type response struct {
		Balance int64 `json:"balance"`
	}

	type insufficientResponse struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Available int64  `json:"available"`
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

		balance, err := ledgerService.Deduct(r.Context(), user.ID, data.Amount, "", data.Description, data.Metadata)

		var insufficient *apperrors.InsufficientCreditsError
		switch {
		case err == nil:
			render.JSON(w, response{Balance: balance.Balance})
		case errors.As(err, &insufficient):
			render.JSONWithStatus(w, insufficientResponse{
				Error:     render.ServiceErrorType,
				Message:   "Insufficient credits",
				Available: insufficient.Available,
			}, http.StatusPaymentRequired)
		default:
			l.Error("Failed to deduct credits", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	type transaction struct {
		ID           string            `json:"id"`
		CreatedAt    time.Time         `json:"created_at"`
		Type         string            `json:"type"`
		Amount       int64             `json:"amount"`
		BalanceAfter int64             `json:"balance_after"`
		Description  string            `json:"description,omitempty"`
		Metadata     map[string]string `json:"metadata,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		list, err := ledgerService.ListTransactions(r.Context(), user.ID, limit, offset)

		switch err {
		case nil:
			transactions := make([]transaction, 0, len(list))
			for _, t := range list {
				transactions = append(transactions, transaction{
					ID:           t.ID.String(),
					CreatedAt:    t.CreatedAt,
					Type:         t.Type,
					Amount:       t.Amount,
					BalanceAfter: t.BalanceAfter,
					Description:  t.Description,
					Metadata:     t.Metadata,
				})
			}
			render.JSON(w, transactions)
		default:
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

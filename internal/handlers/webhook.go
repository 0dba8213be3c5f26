package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/pixelift/pixelift/internal/handlers/render"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/payment"
)

// handlePaymentWebhook receives provider push notifications. Events the
// service cannot act on still get 200, otherwise the provider keeps
// redelivering them forever; only transient storage failures return 500
// so a redelivery has a chance to succeed.
func handlePaymentWebhook(billingService billingService, secret string, l logger.Logger) http.Handler {
	type response struct {
		Received bool `json:"received"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		event, err := payment.ParseEvent(secret, body, r.Header.Get(payment.SignatureHeader))
		switch {
		case errors.Is(err, payment.ErrBadSignature):
			l.Warn("Webhook with bad signature", "remote_addr", r.RemoteAddr)
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
			return
		case err != nil:
			render.ServiceError(w, "Malformed webhook payload", http.StatusBadRequest)
			return
		}

		if err := billingService.HandleEvent(r.Context(), event); err != nil {
			l.Error("Failed to handle webhook event", "error", err, "event_id", event.ID, "type", event.Type)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Received: true})
	})
}

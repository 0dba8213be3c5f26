package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/pixelift/pixelift/internal/apperrors"
	"github.com/pixelift/pixelift/internal/handlers/render"
	"github.com/pixelift/pixelift/internal/handlers/userctx"
	"github.com/pixelift/pixelift/internal/logger"
)

func handleRemoveBackground(removalService removalService, l logger.Logger) http.Handler {
	type request struct {
		// Either a public image URL or inline base64 data to stage first
		ImageURL    string `json:"image_url" validate:"omitempty,url"`
		ImageData   string `json:"image_data"`
		ImageName   string `json:"image_name" validate:"required,max=200"`
		ContentType string `json:"content_type"`
	}

	type response struct {
		ResultURL    string `json:"result_url"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		CreditsSpent int64  `json:"credits_spent"`
		NewBalance   int64  `json:"new_balance"`
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

		imageURL := data.ImageURL
		if imageURL == "" {
			if data.ImageData == "" {
				render.ServiceError(w, "Either image_url or image_data is required", http.StatusBadRequest)
				return
			}

			raw, err := base64.StdEncoding.DecodeString(data.ImageData)
			if err != nil {
				render.ServiceError(w, "image_data is not valid base64", http.StatusBadRequest)
				return
			}

			contentType := data.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}

			imageURL, err = removalService.Stage(r.Context(), data.ImageName, contentType, raw)
			if err != nil {
				l.Error("Failed to stage image", "error", err, "image_name", data.ImageName)
				render.ServiceError(w, "Failed to stage image", http.StatusBadGateway)
				return
			}
		}

		result, err := removalService.Remove(r.Context(), user, imageURL, data.ImageName)

		var insufficient *apperrors.InsufficientCreditsError
		switch {
		case err == nil:
			render.JSON(w, response{
				ResultURL:    result.ResultURL,
				Width:        result.Width,
				Height:       result.Height,
				CreditsSpent: result.CreditsSpent,
				NewBalance:   result.NewBalance,
			})
		case errors.As(err, &insufficient):
			render.JSONWithStatus(w, insufficientResponse{
				Error:     render.ServiceErrorType,
				Message:   "Insufficient credits",
				Available: insufficient.Available,
			}, http.StatusPaymentRequired)
		default:
			l.Error("Failed to remove background", "error", err, "image_name", data.ImageName)
			render.ServiceError(w, "Background removal failed", http.StatusBadGateway)
		}
	})
}

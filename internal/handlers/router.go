package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelift/pixelift/internal/handlers/middleware"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
	"github.com/pixelift/pixelift/internal/payment"
	"github.com/pixelift/pixelift/internal/service/billing"
	"github.com/pixelift/pixelift/internal/service/removal"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	ledgerService ledgerService,
	billingService billingService,
	removalService removalService,
	planService planService,
	webhookSecret string,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(authService, logger))
	api.Handle("POST /auth/login", handleLogin(authService, logger))
	api.Handle("POST /auth/refresh", handleTokenRefresh(authService, logger))

	api.Handle("GET /plans", handleListPlans(planService, logger))
	api.Handle("POST /webhooks/payments", handlePaymentWebhook(billingService, webhookSecret, logger))

	api.Handle("GET /user/me", withAuth(handleUserMe()))
	api.Handle("GET /user/balance", withAuth(handleUserBalance(ledgerService, logger)))
	api.Handle("POST /user/balance/deduct", withAuth(handleDeduct(ledgerService, logger)))
	api.Handle("GET /user/transactions", withAuth(handleListTransactions(ledgerService, logger)))

	api.Handle("POST /checkout", withAuth(handleCreateCheckout(billingService, logger)))
	api.Handle("POST /checkout/verify", withAuth(handleVerifyCheckout(billingService, logger)))

	api.Handle("POST /removal", withAuth(handleRemoveBackground(removalService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(),
	)

	return handler
}

type authService interface {
	// Register user with email, name and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, email string, name string, password string) (models.User, models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound if user not found or password mismatch
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	Deduct(ctx context.Context, userID uuid.UUID, amount int64, txType string, description string, metadata map[string]string) (models.Balance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]models.Transaction, error)
}

type billingService interface {
	CreateCheckout(ctx context.Context, user models.User, planID string) (billing.CheckoutResult, error)
	Verify(ctx context.Context, userID uuid.UUID, planID string) (billing.VerifyResult, error)
	HandleEvent(ctx context.Context, event payment.Event) error
}

type planService interface {
	ListActivePlans(ctx context.Context) ([]models.Plan, error)
}

type removalService interface {
	Stage(ctx context.Context, filename string, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, user models.User, imageURL string, imageName string) (removal.Result, error)
}

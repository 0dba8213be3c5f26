package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixelift/pixelift/internal/blobstore"
	"github.com/pixelift/pixelift/internal/db"
	"github.com/pixelift/pixelift/internal/handlers"
	"github.com/pixelift/pixelift/internal/inference"
	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/payment"
	"github.com/pixelift/pixelift/internal/repository/postgres"
	"github.com/pixelift/pixelift/internal/service/auth"
	"github.com/pixelift/pixelift/internal/service/billing"
	"github.com/pixelift/pixelift/internal/service/ledger"
	"github.com/pixelift/pixelift/internal/service/reconciler"
	"github.com/pixelift/pixelift/internal/service/removal"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Reconciler *reconciler.Reconciler

	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	authService, err := auth.NewService(
		auth.Config{SecretKey: c.SecretKey},
		storage.User(),
		storage.Refresh(),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	ledgerService := ledger.NewService(storage, log)

	paymentClient := payment.NewClient(c.PaymentAPIURL, log)
	billingService := billing.NewService(storage, paymentClient, log)

	inferenceClient := inference.NewClient(c.InferenceAPIURL, log)
	blobClient := blobstore.NewClient(c.BlobStoreURL, log)
	removalService := removal.NewService(inferenceClient, blobClient, ledgerService, log)

	mux := handlers.NewRouter(
		authService,
		ledgerService,
		billingService,
		removalService,
		storage.Plan(),
		c.PaymentWebhookSecret,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Reconciler: reconciler.New(billingService, log),
		logger:     log,
	}, nil
}

// Run starts the http server and the pending-purchase reconciler,
// closing both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	g, gCtx := errgroup.WithContext(srvCtx)

	g.Go(func() error {
		<-s.Reconciler.Run(gCtx)
		s.logger.Info("Reconciler stopped")
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()

	if waitErr := g.Wait(); waitErr != nil && err == http.ErrServerClosed {
		err = waitErr
	}

	return err
}

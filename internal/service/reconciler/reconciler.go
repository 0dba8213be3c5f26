// Package reconciler sweeps pending purchases the client-side verify
// call never settled (closed tab, crashed browser, lost webhook) and
// resolves them against the provider. It reuses the same idempotent
// completion path as the interactive triggers, so running it alongside
// them is safe.
package reconciler

import (
	"context"
	"time"

	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
)

const (
	defaultCountWorkers  = 4
	defaultSweepInterval = time.Minute
	defaultBatchSize     = 100

	// Leave fresh checkouts to the client poller before sweeping them
	defaultMinAge = 5 * time.Minute
)

type billingService interface {
	StalePurchases(ctx context.Context, olderThan time.Time, limit int) ([]models.Purchase, error)
	Reconcile(ctx context.Context, purchase models.Purchase) error
}

type Reconciler struct {
	producer *Producer
	consumer *Consumer
}

func New(billing billingService, l logger.Logger) *Reconciler {
	return &Reconciler{
		producer: &Producer{
			interval:  defaultSweepInterval,
			minAge:    defaultMinAge,
			batchSize: defaultBatchSize,
			billing:   billing,
			logger:    l,
		},
		consumer: &Consumer{
			countWorkers: defaultCountWorkers,
			billing:      billing,
			logger:       l,
		},
	}
}

// Run starts the sweep loop and workers; the returned channel closes
// when everything has stopped after context cancellation.
func (r *Reconciler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	purchases := make(chan models.Purchase)

	producerStopped := r.producer.Produce(ctx, purchases)
	consumerStopped := r.consumer.Consume(ctx, purchases)

	go func() {
		defer close(idleStopped)
		defer close(purchases)
		<-producerStopped
		<-consumerStopped
		r.consumer.logger.Debug("Reconciler stopped")
	}()

	return idleStopped
}

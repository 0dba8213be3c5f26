package reconciler

import (
	"context"
	"sync"

	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
)

type Consumer struct {
	countWorkers int

	billing billingService
	logger  logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Purchase) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Reconciler consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Purchase) {
	for {
		select {
		case <-ctx.Done():
			return

		case purchase, ok := <-in:
			if !ok {
				c.logger.Debug("Reconciler worker stopped, input channel closed")
				return
			}

			if err := c.billing.Reconcile(ctx, purchase); err != nil {
				c.logger.Error("Failed to reconcile purchase", "error", err, "purchase_id", purchase.ID)
			}
		}
	}
}

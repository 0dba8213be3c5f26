package reconciler

import (
	"context"
	"time"

	"github.com/pixelift/pixelift/internal/logger"
	"github.com/pixelift/pixelift/internal/models"
)

type Producer struct {
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	billing   billingService
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Purchase) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting reconciler producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Reconciler producer stopped by context")
				return

			case <-ticker.C:
				purchases, err := p.billing.StalePurchases(ctx, time.Now().Add(-p.minAge), p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list stale purchases", "error", err)
					continue
				}

				for _, purchase := range purchases {
					select {
					case <-ctx.Done():
						p.logger.Debug("Reconciler producer stopped by context while sending")
						return
					case out <- purchase:
					}
				}
			}
		}
	}()

	return idleStopped
}

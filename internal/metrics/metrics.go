package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelift_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelift_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	})

	CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelift_credits_granted_total",
		Help: "Credits granted to balances by transaction type.",
	}, []string{"type"})

	CreditsSpent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelift_credits_spent_total",
		Help: "Credits debited from balances by transaction type.",
	}, []string{"type"})

	PurchasesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelift_purchases_completed_total",
		Help: "Purchases transitioned to completed.",
	})

	PurchasesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pixelift_purchases_failed_total",
		Help: "Purchases transitioned to failed.",
	})
)

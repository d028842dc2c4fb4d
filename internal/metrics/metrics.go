// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "http_requests_total",
		Help:      "HTTP requests processed, by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tillpos",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// TransactionsCompleted counts completed transactions by type.
	TransactionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "transactions_completed_total",
		Help:      "Transactions completed, by type.",
	}, []string{"type"})

	// TransactionsVoided counts voided transactions.
	TransactionsVoided = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "transactions_voided_total",
		Help:      "Transactions voided before completion.",
	})

	// SerialsClaimed counts serial units reserved by the allocator.
	SerialsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "serials_claimed_total",
		Help:      "Serialized units claimed by transaction items.",
	})

	// SessionsClosed counts closed sessions by reconciliation outcome.
	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "sessions_closed_total",
		Help:      "Sessions closed, by reconciliation outcome.",
	}, []string{"outcome"})

	// ReceiptDeliveryFailures counts webhook deliveries that exhausted retries.
	ReceiptDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tillpos",
		Name:      "receipt_delivery_failures_total",
		Help:      "Receipt notifications dead-lettered after max attempts.",
	})
)

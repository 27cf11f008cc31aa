// Package metrics holds the Prometheus collectors of the gating engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedemptionsTotal counts redemptions by terminal outcome.
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_redemptions_total",
			Help: "Redemption requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filegate_uploads_total",
		Help: "Files registered under a new short code.",
	})

	CodeCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filegate_code_collisions_total",
		Help: "Short code draws rejected because the code already existed.",
	})

	MembershipChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_membership_checks_total",
			Help: "Live channel membership queries by result.",
		},
		[]string{"result"},
	)

	ShortenerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_shortener_requests_total",
			Help: "Shortener calls by result.",
		},
		[]string{"result"},
	)

	ShortenerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filegate_shortener_request_duration_seconds",
		Help:    "Shortener call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	PurgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_purges_total",
			Help: "Deferred message deletions by result.",
		},
		[]string{"result"},
	)

	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_broadcast_messages_total",
			Help: "Broadcast sends by result.",
		},
		[]string{"result"},
	)

	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filegate_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a broadcast send slot.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_ratelimit_decisions_total",
			Help: "Shared pacing decisions by result.",
		},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filegate_http_requests_total",
			Help: "Admin API requests.",
		},
		[]string{"method", "path", "status"},
	)
)

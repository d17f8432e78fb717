// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes HTTP handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// BidsTotal counts bid attempts by auction kind and outcome.
	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Total number of bid attempts by auction kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// AuctionsClosedTotal counts committed closes by trigger.
	AuctionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_closed_total",
			Help: "Total number of auctions closed, by trigger",
		},
		[]string{"trigger"},
	)

	// AuctionsOpenedTotal counts SCHEDULED to OPEN transitions made by the sweep.
	AuctionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_opened_total",
			Help: "Total number of auctions opened by the sweep",
		},
	)

	// LiveConnections tracks open websocket connections on this instance.
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_live_connections",
			Help: "Number of live websocket connections",
		},
	)

	// RateLimitedTotal counts requests rejected by a rate limit tier.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting, by tier",
		},
		[]string{"tier"},
	)

	// DroppedMessagesTotal counts frames dropped because a client's send buffer was full.
	DroppedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_dropped_messages_total",
			Help: "Total number of frames dropped for slow clients",
		},
	)
)

// Outcome labels for BidsTotal.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
)

// Trigger labels for AuctionsClosedTotal.
const (
	TriggerSeller = "seller"
	TriggerSystem = "system"
	TriggerDutch  = "dutch_win"
)

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reservation engine

	SeatsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_seats_reserved_total",
			Help: "Total number of seats reserved",
		},
	)

	ReservationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_failures_total",
			Help: "Total number of failed reservation attempts by error kind",
		},
		[]string{"kind"},
	)

	SeatConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_seat_conflicts_total",
			Help: "Total number of claims rejected because a seat was unavailable",
		},
	)

	Compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_compensations_total",
			Help: "Total number of compensating rollbacks by result",
		},
		[]string{"result"}, // "ok", "failed"
	)

	DuplicateClaims = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_duplicate_claims_total",
			Help: "Total number of record inserts rejected by the uniqueness backstop",
		},
	)

	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_cancellations_total",
			Help: "Total number of cancellation attempts by result",
		},
		[]string{"result"}, // "ok", "window_closed", "not_found", "error"
	)

	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservation_claim_duration_seconds",
			Help:    "Time spent claiming seats in the ledger",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Events

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_events_published_total",
			Help: "Total number of reservation events handed to the broker by result",
		},
		[]string{"result"}, // "ok", "error", "breaker_open"
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservation_events_dropped_total",
			Help: "Total number of events dropped because the publish buffer was full",
		},
	)

	// Catalog cache

	CatalogCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of movie catalog cache hits",
		},
	)

	CatalogCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of movie catalog cache misses",
		},
	)

	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"backend"}, // "redis", "local"
	)
)

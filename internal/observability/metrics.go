package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lobby", Name: "rides_created_total", Help: "Total ride lobbies opened"})
	MembersJoinedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lobby", Name: "members_joined_total", Help: "Total successful joins"})
	MembersLeftTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lobby", Name: "members_left_total", Help: "Total successful leaves"})
	WSWatchers         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_lobby", Name: "ws_watchers", Help: "Currently connected ride watchers"})
	CacheHitsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lobby", Name: "cache_hits_total", Help: "Snapshot cache hits"})
	CacheMissesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lobby", Name: "cache_misses_total", Help: "Snapshot cache misses"})

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lobby", Name: "transitions_total", Help: "State machine transitions by operation and outcome"},
		[]string{"op", "outcome"},
	)
	DomainErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lobby", Name: "domain_errors_total", Help: "Guard violations by error code"},
		[]string{"code"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lobby", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_lobby",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

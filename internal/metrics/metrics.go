package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embr_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embr_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embr_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsDestroyed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embr_rooms_destroyed_total",
			Help: "Total rooms destroyed early by their creator",
		},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embr_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	// Broadcast metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embr_events_published_total",
			Help: "Total events published to room channels",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embr_events_dropped_total",
			Help: "Total events dropped because the broadcast queue was full",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embr_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embr_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)

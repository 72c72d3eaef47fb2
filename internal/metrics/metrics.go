package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logvault_gateway_entries_total",
			Help: "Total number of log entries received",
		},
		[]string{"endpoint", "status"},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logvault_gateway_publish_errors_total",
			Help: "Total number of queue publish failures",
		},
	)

	// Consumer metrics
	ConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logvault_consumer_messages_total",
			Help: "Total number of queue messages processed",
		},
		[]string{"backend", "outcome"},
	)

	PoisonMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logvault_consumer_poison_messages_total",
			Help: "Total number of undecodable messages dropped",
		},
	)

	WriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logvault_consumer_write_retries_total",
			Help: "Total number of backend write retries",
		},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logvault_storage_write_duration_seconds",
			Help:    "Duration of backend write operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logvault_storage_query_duration_seconds",
			Help:    "Duration of backend query operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logvault_gateway_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"project"},
	)
)

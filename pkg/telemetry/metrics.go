package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the /metrics endpoint. Registered once at
// package init via promauto.
var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hearthsync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthsync",
		Name:      "mutations_total",
		Help:      "Accepted engagement mutations by kind.",
	}, []string{"kind"})

	mutationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthsync",
		Name:      "mutation_rejections_total",
		Help:      "Rejected mutations by reason.",
	}, []string{"reason"})

	celebrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hearthsync",
		Name:      "celebrations_total",
		Help:      "Celebration events emitted.",
	})

	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hearthsync",
		Name:      "hub_subscribers",
		Help:      "Current websocket subscribers.",
	})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hearthsync",
		Name:      "cache_requests_total",
		Help:      "Snapshot cache lookups by outcome.",
	}, []string{"outcome"})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, path string, status int, d time.Duration) {
	requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// CountMutation records one accepted mutation.
func CountMutation(kind string) { mutationsTotal.WithLabelValues(kind).Inc() }

// CountRejection records one rejected mutation.
func CountRejection(reason string) { mutationRejections.WithLabelValues(reason).Inc() }

// CountCelebration records one emitted celebration.
func CountCelebration() { celebrationsTotal.Inc() }

// SetHubSubscribers updates the live subscriber gauge.
func SetHubSubscribers(n int) { hubSubscribers.Set(float64(n)) }

// CountCacheHit records a snapshot cache hit or miss.
func CountCacheHit(hit bool) {
	if hit {
		cacheHits.WithLabelValues("hit").Inc()
	} else {
		cacheHits.WithLabelValues("miss").Inc()
	}
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medmap"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	diagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_total",
			Help:      "Total number of diagnoses by outcome",
		},
		[]string{"outcome"},
	)

	reportPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_persist_failures_total",
			Help:      "Diagnoses whose report could not be persisted",
		},
	)

	rankingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_cache_lookups_total",
			Help:      "Ranking cache lookups by result",
		},
		[]string{"result"},
	)

	corpusRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_index_rebuilds_total",
			Help:      "Corpus index rebuilds by result",
		},
		[]string{"result"},
	)

	corpusDocuments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_documents",
			Help:      "Documents in the active corpus index",
		},
	)

	outbreakChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbreak_checks_total",
			Help:      "Outbreak and red-zone evaluations",
		},
		[]string{"kind", "triggered"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "Store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"store"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request count, latency and in-flight requests.
// The path label is the matched route template to bound cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// RecordDiagnosis records a diagnosis outcome: matched or no_match
func RecordDiagnosis(outcome string) {
	diagnosesTotal.WithLabelValues(outcome).Inc()
}

// RecordPersistFailure records a report that could not be written
func RecordPersistFailure() {
	reportPersistFailures.Inc()
}

// RecordCacheLookup records a ranking cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		rankingCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	rankingCacheLookups.WithLabelValues("miss").Inc()
}

// RecordCorpusRebuild records a corpus index rebuild and the resulting size
func RecordCorpusRebuild(documents int, err error) {
	if err != nil {
		corpusRebuilds.WithLabelValues("error").Inc()
		return
	}
	corpusRebuilds.WithLabelValues("ok").Inc()
	corpusDocuments.Set(float64(documents))
}

// RecordOutbreakCheck records an outbreak or red_zone evaluation
func RecordOutbreakCheck(kind string, triggered bool) {
	outbreakChecks.WithLabelValues(kind, strconv.FormatBool(triggered)).Inc()
}

// SetBreakerState publishes the numeric breaker state for store
func SetBreakerState(store string, state int) {
	breakerState.WithLabelValues(store).Set(float64(state))
}

package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teamchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	subscriptionRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_subscription_retries_total",
			Help: "Total number of realtime subscription reconnect attempts.",
		},
	)
	embeddingBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_embedding_batches_total",
			Help: "Total number of embedding sub-batches sent to the provider.",
		},
	)
	vectorUpsertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_vector_upserts_total",
			Help: "Total number of vectors upserted into the index.",
		},
	)
	vectorQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_vector_queries_total",
			Help: "Total number of similarity queries against the index.",
		},
	)
	analysisCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_analysis_cache_total",
			Help: "Analysis cache lookups by result.",
		},
		[]string{"result"},
	)
	llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_llm_request_duration_seconds",
			Help:    "Language-model request latencies in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		subscriptionRetriesTotal,
		embeddingBatchesTotal,
		vectorUpsertsTotal,
		vectorQueriesTotal,
		analysisCacheTotal,
		llmRequestDuration,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncSubscriptionRetry() {
	subscriptionRetriesTotal.Inc()
}

func IncEmbeddingBatch() {
	embeddingBatchesTotal.Inc()
}

func AddVectorUpserts(n int) {
	vectorUpsertsTotal.Add(float64(n))
}

func IncVectorQuery() {
	vectorQueriesTotal.Inc()
}

// IncAnalysisCache records a cache lookup outcome ("hit" or "miss").
func IncAnalysisCache(result string) {
	analysisCacheTotal.WithLabelValues(result).Inc()
}

func ObserveLLMRequest(elapsed time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	llmRequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

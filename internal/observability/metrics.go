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
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active shell websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of shell websocket lifecycle events.",
		},
		[]string{"event"},
	)
	aggregationPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_aggregation_passes_total",
			Help: "Total number of thread aggregation passes.",
		},
		[]string{"status"},
	)
	refreshRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_refresh_rejected_total",
			Help: "Total number of thread refreshes skipped by the fetch governor.",
		},
		[]string{"reason"},
	)
	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_alerts_total",
			Help: "Total number of notification outputs emitted, by kind.",
		},
		[]string{"kind"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		aggregationPassesTotal,
		refreshRejectedTotal,
		alertsTotal,
		amqpPublishErrorsTotal,
	)
}

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

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAggregationPass(status string) {
	aggregationPassesTotal.WithLabelValues(status).Inc()
}

func IncRefreshRejected(reason string) {
	refreshRejectedTotal.WithLabelValues(reason).Inc()
}

func IncAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

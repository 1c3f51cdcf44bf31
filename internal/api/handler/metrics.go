package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fellowsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fellows_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	fellowsRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fellows_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	fellowsLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fellows_logins_total",
		Help: "Login attempts by provider and outcome.",
	}, []string{"provider", "outcome"})

	fellowsPurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fellows_purchases_total",
		Help: "Store purchase attempts by outcome.",
	}, []string{"outcome"})

	fellowsRegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fellows_registrations_total",
		Help: "Registration attempts by outcome.",
	}, []string{"outcome"})

	fellowsDependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fellows_dependency_up",
		Help: "1 when the last health probe of a dependency succeeded.",
	}, []string{"name"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		fellowsRequestsTotal.WithLabelValues(method, path, status).Inc()
		fellowsRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// recordLogin counts a login attempt. outcome is "success", a functional
// error code, or "error".
func recordLogin(provider, outcome string) {
	if provider == "" {
		provider = "unknown"
	}
	fellowsLoginsTotal.WithLabelValues(provider, outcome).Inc()
}

func recordPurchase(outcome string) {
	fellowsPurchasesTotal.WithLabelValues(outcome).Inc()
}

func recordRegistration(outcome string) {
	fellowsRegistrationsTotal.WithLabelValues(outcome).Inc()
}

// RecordProbe publishes a health probe result.
func RecordProbe(name string, success bool) {
	v := 0.0
	if success {
		v = 1
	}
	fellowsDependencyUp.WithLabelValues(name).Set(v)
}

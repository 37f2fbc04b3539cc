package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Question outcomes recorded by text2sql_questions_total
const (
	outcomeExecuted       = "executed"
	outcomeGenerated      = "generated"
	outcomeUnsafe         = "unsafe"
	outcomeExecutionError = "execution_error"
	outcomeFailed         = "failed"
)

// serverMetrics lives on its own registry so several servers can coexist in
// one process.
type serverMetrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	questions       *prometheus.CounterVec
	generation      prometheus.Histogram
	execution       prometheus.Histogram
}

func newServerMetrics() *serverMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &serverMetrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "text2sql_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "text2sql_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		questions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "text2sql_questions_total",
			Help: "Questions answered by outcome",
		}, []string{"outcome"}),
		generation: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "text2sql_generation_seconds",
			Help:    "Time spent generating SQL per question",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		execution: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "text2sql_execution_seconds",
			Help:    "Time spent executing generated SQL",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// middleware records every request under its route pattern
func (m *serverMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *serverMetrics) handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

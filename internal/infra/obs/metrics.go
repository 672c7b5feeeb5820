package obs

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. Counters satisfy the
// application layer's Inc-only metric fields.
type Metrics struct {
	BookingsCreated     prometheus.Counter
	AllocationConflicts prometheus.Counter
	BookingsReclaimed   prometheus.Counter
	RentalsCompleted    prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// NewMetrics builds and registers the collectors. Safe to call multiple
// times; registration happens once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{
			BookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "motorent",
				Name:      "bookings_created_total",
				Help:      "Bookings successfully created.",
			}),
			AllocationConflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "motorent",
				Name:      "allocation_conflicts_total",
				Help:      "Vehicle claims lost to a concurrent booking.",
			}),
			BookingsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "motorent",
				Name:      "bookings_reclaimed_total",
				Help:      "Pending bookings expired by the sweeper.",
			}),
			RentalsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "motorent",
				Name:      "rentals_completed_total",
				Help:      "Rentals closed at checkout.",
			}),
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "motorent",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status.",
			}, []string{"method", "route", "status"}),
			HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "motorent",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
		}
		prometheus.MustRegister(
			m.BookingsCreated,
			m.AllocationConflicts,
			m.BookingsReclaimed,
			m.RentalsCompleted,
			m.HTTPRequests,
			m.HTTPDuration,
		)
		metrics = m
	})
	return metrics
}

// Handler serves the Prometheus scrape endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware records per-route request counts and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

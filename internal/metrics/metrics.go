// ABOUTME: Prometheus collectors for tenant store activity and the HTTP API
// ABOUTME: All methods are nil-safe so components run unchanged with metrics disabled

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one gateway instance.
type Metrics struct {
	gatherer prometheus.Gatherer

	tenantOps         *prometheus.CounterVec
	tenantOpDuration  *prometheus.HistogramVec
	tenantBusyRetries prometheus.Counter
	tenantProvisions  *prometheus.CounterVec
	tenantPoolOpen    prometheus.Gauge

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		tenantOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tower_tenant_operations_total",
				Help: "Tenant store operations by kind and result",
			},
			[]string{"op", "result"},
		),
		tenantOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tower_tenant_operation_duration_seconds",
				Help:    "Duration of tenant store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		tenantBusyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tower_tenant_busy_retries_total",
			Help: "Statements retried because a tenant store was busy or locked",
		}),
		tenantProvisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tower_tenant_provisions_total",
				Help: "Provision calls by outcome (created, existing, failed)",
			},
			[]string{"outcome"},
		),
		tenantPoolOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tower_tenant_pool_open",
			Help: "Tenant stores currently held open by the pool",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tower_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tower_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.tenantOps,
		m.tenantOpDuration,
		m.tenantBusyRetries,
		m.tenantProvisions,
		m.tenantPoolOpen,
		m.requests,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTenantOp records one tenant store operation.
func (m *Metrics) ObserveTenantOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tenantOps.WithLabelValues(op, result).Inc()
	m.tenantOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncBusyRetry counts one retry of a busy statement.
func (m *Metrics) IncBusyRetry() {
	if m == nil {
		return
	}
	m.tenantBusyRetries.Inc()
}

// IncProvision counts a provision call by outcome.
func (m *Metrics) IncProvision(outcome string) {
	if m == nil {
		return
	}
	m.tenantProvisions.WithLabelValues(outcome).Inc()
}

// SetPoolOpen reports the number of pooled tenant stores.
func (m *Metrics) SetPoolOpen(n int) {
	if m == nil {
		return
	}
	m.tenantPoolOpen.Set(float64(n))
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency under a fixed route label.
// The route is supplied by the caller so path parameters never become labels.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

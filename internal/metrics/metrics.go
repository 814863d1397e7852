// Package metrics provides Prometheus instrumentation for the hedge engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations by name and outcome code
	// ("ok" on success).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldhedge_operations_total",
		Help: "Total number of engine operations by outcome",
	}, []string{"op", "outcome"})

	// OperationLatency tracks engine operation latency, oracle call included.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yieldhedge_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// HedgesByStatus tracks how many hedges sit in each lifecycle state.
	HedgesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "yieldhedge_hedges",
		Help: "Number of hedges by lifecycle status",
	}, []string{"status"})

	// SettlementsTotal counts settlements by which side won.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldhedge_settlements_total",
		Help: "Total settlements by winning side",
	}, []string{"winner_side", "hedge_type"})

	// OracleFailures counts failed yield queries.
	OracleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldhedge_oracle_failures_total",
		Help: "Yield oracle queries that failed",
	})

	// OracleLatency tracks yield query latency.
	OracleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yieldhedge_oracle_latency_seconds",
		Help:    "Yield oracle query latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// FeePool tracks the fee total currently held by the platform.
	FeePool = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yieldhedge_fee_pool",
		Help: "Fees collected and not yet withdrawn",
	})

	// EscrowedValue tracks the sum of stakes currently held in escrow.
	EscrowedValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yieldhedge_escrowed_value",
		Help: "Sum of stakes currently held in escrow",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yieldhedge_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yieldhedge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yieldhedge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for the path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying writer so WebSocket upgrades work
// behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

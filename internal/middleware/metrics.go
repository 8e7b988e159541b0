// Package middleware provides HTTP middleware and metrics for the relayer.
package middleware

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_rpc_calls_total",
			Help: "Total JSON-RPC calls by method and result",
		},
		[]string{"method", "result"},
	)

	relayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_relay_total",
			Help: "Executed meta-transactions by outcome and key class",
		},
		[]string{"outcome", "key_class"},
	)

	relayRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_relay_rejected_total",
			Help: "Meta-transactions rejected before execution, by error code",
		},
		[]string{"code"},
	)

	refundWeiTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_refund_wei_total",
			Help: "Total ETH refunded to relayers, in wei",
		},
	)

	timelockExecutable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_timelock_executable_changes",
			Help: "Timelock changes currently executable across all accounts",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath uses the chi route pattern to keep label cardinality bounded.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "other"
}

// RecordRPCCall counts a JSON-RPC call. result is "ok" or an error code.
func RecordRPCCall(method, result string) {
	rpcCallsTotal.WithLabelValues(method, result).Inc()
}

// RecordRelay counts an executed meta-transaction.
func RecordRelay(outcome, keyClass string) {
	relayTotal.WithLabelValues(outcome, keyClass).Inc()
}

// RecordRejection counts a rejected meta-transaction.
func RecordRejection(code string) {
	relayRejectedTotal.WithLabelValues(code).Inc()
}

// AddRefundWei adds an ETH refund to the refund counter.
func AddRefundWei(wei *big.Int) {
	f, _ := new(big.Float).SetInt(wei).Float64()
	refundWeiTotal.Add(f)
}

// SetExecutableTimelockChanges sets the executable timelock change gauge.
func SetExecutableTimelockChanges(n int) {
	timelockExecutable.Set(float64(n))
}

// Package metrics provides Prometheus instrumentation for the dealer.
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
	// CyclesTotal counts reconciliation cycles by outcome (ok, error, skipped).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_cycles_total",
		Help: "Total number of reconciliation cycles",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealer_cycle_duration_seconds",
		Help:    "Reconciliation cycle duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// PhaseErrorsTotal counts failed cycle phases by phase and error kind.
	PhaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_phase_errors_total",
		Help: "Failed cycle phases by phase and error kind",
	}, []string{"phase", "kind"})

	// OrdersTotal counts market orders by side and final status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_orders_total",
		Help: "Market orders placed on the exchange",
	}, []string{"side", "status"})

	// TransfersTotal counts transfer lifecycle events by direction.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_transfers_total",
		Help: "Transfer lifecycle events",
	}, []string{"direction", "event"})

	TransferSats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_transfer_sats_total",
		Help: "Satoshis moved between wallet and exchange",
	}, []string{"direction"})

	PendingTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_pending_transfers",
		Help: "In-flight transfers awaiting settlement",
	})

	LiabilityUsd = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_liability_usd",
		Help: "Wallet liability being hedged, in USD",
	})

	ExposureUsd = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_exposure_usd",
		Help: "Absolute short exposure on the exchange, in USD",
	})

	CollateralUsd = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_collateral_usd",
		Help: "Exchange collateral valued in USD",
	})

	LeverageRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_leverage_ratio",
		Help: "Liability divided by collateral",
	})

	FundingRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_funding_rate",
		Help: "Last observed funding rate of the hedging instrument",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dealer_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealer_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealer_http_request_duration_seconds",
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

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

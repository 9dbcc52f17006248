// Package metrics provides Prometheus instrumentation for the ledger.
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
	// TradesTotal counts executed trades, partitioned by outcome.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_trades_total",
		Help: "Total number of trades executed",
	}, []string{"outcome"})

	// TradeLatency tracks end-to-end execution time including retries.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playmarket_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// TradeRejections counts failed trades by error kind.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_trade_rejections_total",
		Help: "Trades rejected, by error kind",
	}, []string{"kind"})

	// TxRetries counts transactions re-run after a concurrency conflict.
	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_tx_retries_total",
		Help: "Transactions retried after a conflict",
	}, []string{"op"})

	// FeesCollected is the running total of fees paid into the treasury, in micros.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playmarket_fees_collected_micros_total",
		Help: "Fees collected into the treasury in micros",
	})

	// CollateralTraded is the gross collateral spent on trades, in micros.
	CollateralTraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_collateral_traded_micros_total",
		Help: "Gross collateral spent on trades in micros",
	}, []string{"outcome"})

	// SettlementsTotal counts markets settled, by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_settlements_total",
		Help: "Markets settled",
	}, []string{"outcome"})

	// PayoutsTotal counts individual settlement credits.
	PayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playmarket_payouts_total",
		Help: "Settlement payouts credited",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playmarket_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playmarket_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playmarket_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playmarket_http_request_duration_seconds",
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

		// Route pattern, not the raw path, to keep label cardinality bounded.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
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

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes WebSocket upgrades through to the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

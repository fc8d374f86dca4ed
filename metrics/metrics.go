// Package metrics exposes Prometheus instrumentation for the API client and
// cart service. All record methods are nil-safe so callers can run without
// metrics wired.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the client core.
type Metrics struct {
	// APIRequests counts completed API requests by method and status class.
	APIRequests *prometheus.CounterVec

	// TokenRefreshes counts access token refresh attempts by outcome.
	TokenRefreshes *prometheus.CounterVec

	// CartMutations counts cart mutations by operation and outcome.
	CartMutations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		APIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketctl",
			Name:      "api_requests_total",
			Help:      "Completed marketplace API requests.",
		}, []string{"method", "status"}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketctl",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts.",
		}, []string{"outcome"}),
		CartMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketctl",
			Name:      "cart_mutations_total",
			Help:      "Cart mutation operations.",
		}, []string{"op", "outcome"}),
	}
}

// ObserveRequest records a completed API request. A status of 0 means the
// request never produced a response (transport failure).
func (m *Metrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, label).Inc()
}

// ObserveRefresh records a token refresh attempt.
func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome(ok)).Inc()
}

// ObserveCartMutation records a cart mutation.
func (m *Metrics) ObserveCartMutation(op string, ok bool) {
	if m == nil {
		return
	}
	m.CartMutations.WithLabelValues(op, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Serve exposes g on addr under /metrics until ctx is cancelled. It is meant
// for long-running invocations (watch mode) and returns once the listener has
// shut down.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("Metrics listener started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

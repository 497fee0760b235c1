// Package metrics registers the service's Prometheus collectors and exposes
// them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentica"

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_request_errors_total",
		Help:      "Total number of HTTP requests that resulted in a server error.",
	}, []string{"handler", "method"})

	httpLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"handler", "method"})

	dispatchTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_actions_total",
		Help:      "Wallet actions dispatched, by action and terminal ledger status.",
	}, []string{"action", "status"})

	dispatchLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "wallet_action_duration_seconds",
		Help:      "Wallet action execution time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"action"})

	unconfirmedOps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_operations_unconfirmed_total",
		Help:      "Submitted wallet operations whose confirmation wait was abandoned.",
	}, []string{"action"})

	sagaSteps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_saga_steps_total",
		Help:      "Room creation saga step outcomes.",
	}, []string{"step", "outcome"})

	reconcileDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "saga_reconcile_decisions_total",
		Help:      "Decisions taken by the saga intent reconciler.",
	}, []string{"decision"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveDispatch records the terminal status of one wallet action.
func ObserveDispatch(action, status string, duration time.Duration) {
	dispatchTotal.WithLabelValues(action, status).Inc()
	dispatchLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveUnconfirmed counts an operation returned as submitted_unconfirmed.
func ObserveUnconfirmed(action string) {
	unconfirmedOps.WithLabelValues(action).Inc()
}

// ObserveSagaStep records one saga step outcome (ok, failed, skipped, compensated).
func ObserveSagaStep(step, outcome string) {
	sagaSteps.WithLabelValues(step, outcome).Inc()
}

// ObserveReconcile records a reconciler decision.
func ObserveReconcile(decision string) {
	reconcileDecisions.WithLabelValues(decision).Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

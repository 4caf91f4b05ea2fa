// Package metrics exposes Prometheus metrics for the activation service on a
// dedicated HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector served by MetricsServer.
var Registry = prometheus.NewRegistry()

var (
	activationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "device_activation",
		Name:      "activation_outcomes_total",
		Help:      "Activation operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	externalFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "device_activation",
		Name:      "activation_external_failures_total",
		Help:      "Failed calls to external collaborators.",
	}, []string{"collaborator"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "device_activation",
		Name:      "http_request_duration_seconds",
		Help:      "API request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		activationOutcomes,
		externalFailures,
		requestDuration,
	)
}

// RecordOutcome counts one finished activation operation. outcome is either a
// result name ("activated", "reactivated", "provisioned_alive", "deactivated")
// or an error kind.
func RecordOutcome(operation, outcome string) {
	activationOutcomes.WithLabelValues(operation, outcome).Inc()
}

// RecordExternalFailure counts a failed call to a collaborator such as
// "registration", "token", "profile", "sms" or "events".
func RecordExternalFailure(collaborator string) {
	externalFailures.WithLabelValues(collaborator).Inc()
}

// ObserveRequest records the latency of an API request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(route, http.StatusText(status)).Observe(elapsed.Seconds())
}

// MetricsServer serves Registry on /metrics.
type MetricsServer struct {
	srv *http.Server
}

func New(namespace, listenAddr string) (*MetricsServer, error) {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		Registry: Registry,
	}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}

// Handler returns the /metrics router, used in tests.
func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aide/internal/logging"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// Metrics holds the pipeline's instrumentation. Metrics register on the
// default Prometheus registry; Serve exposes them for scraping.
type Metrics struct {
	RequestsCreated   *prometheus.CounterVec
	RequestsResolved  *prometheus.CounterVec
	ExecutionsTotal   *prometheus.CounterVec
	HandlerAttempts   prometheus.Histogram
	PollCycles        prometheus.Counter
	PollCycleDuration prometheus.Histogram
	PendingRequests   prometheus.Gauge
	NotificationsSent *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics instance, creating it on first use.
// Safe for concurrent first use; promauto registration must run exactly once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_approval_requests_created_total",
			Help: "Approval requests created, by action type.",
		}, []string{"action_type"}),
		RequestsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_approval_requests_resolved_total",
			Help: "Approval requests resolved, by final status.",
		}, []string{"status"}),
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_action_executions_total",
			Help: "Action executions, by action type and outcome.",
		}, []string{"action_type", "outcome"}),
		HandlerAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aide_handler_attempts",
			Help:    "Handler invocations needed per execution.",
			Buckets: []float64{1, 2, 3},
		}),
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aide_poll_cycles_total",
			Help: "Completed approval poll cycles.",
		}),
		PollCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aide_poll_cycle_duration_seconds",
			Help:    "Wall time of one approval poll cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "aide_pending_requests",
			Help: "Requests awaiting review as of the last poll cycle.",
		}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aide_notifications_sent_total",
			Help: "Notifications dispatched, by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}
}

// Serve exposes /metrics on the configured port until ctx is cancelled.
// Returns immediately when metrics are disabled.
func Serve(ctx context.Context, cfg MetricsConfig, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	if !cfg.Enabled {
		logger.Info("Metrics disabled by config")
		return nil
	}
	if cfg.PrometheusPort == 0 {
		cfg.PrometheusPort = 9097
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics listening on :%d/metrics", cfg.PrometheusPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

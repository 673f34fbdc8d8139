package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for provisioning runs.
// A disabled Metrics is a no-op on every method.
type Metrics struct {
	config MetricsConfig

	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageWarnings  *prometheus.CounterVec

	runsCompleted  *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRunOutcome *prometheus.GaugeVec
	lastRunTime    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stagesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_executed_total",
				Help:      "Total number of stage executions by status",
			},
			[]string{"stage", "phase", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage execution in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		stageWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_warnings_total",
				Help:      "Total number of degraded conditions raised by stages",
			},
			[]string{"stage", "code"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of full provisioning runs in seconds",
				Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),
		lastRunOutcome: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_outcome",
				Help:      "Outcome of the most recent run (1 for the matching outcome, 0 otherwise)",
			},
			[]string{"outcome"},
		),
		lastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the most recent run finished",
			},
		),
	}

	registry.MustRegister(
		m.stagesExecuted,
		m.stageDuration,
		m.stageWarnings,
		m.runsCompleted,
		m.runDuration,
		m.lastRunOutcome,
		m.lastRunTime,
	)

	return m, nil
}

// RecordStage records a stage execution with its status and duration.
func (m *Metrics) RecordStage(stage, phase, status string, duration time.Duration) {
	if m.stagesExecuted == nil {
		return
	}
	m.stagesExecuted.WithLabelValues(stage, phase, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordWarning records a degraded condition raised by a stage.
func (m *Metrics) RecordWarning(stage, code string) {
	if m.stageWarnings == nil {
		return
	}
	m.stageWarnings.WithLabelValues(stage, code).Inc()
}

// RecordRun records a finished run. Only one outcome gauge is set to 1.
func (m *Metrics) RecordRun(outcome string, outcomes []string, duration time.Duration, finished time.Time) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	for _, o := range outcomes {
		value := 0.0
		if o == outcome {
			value = 1.0
		}
		m.lastRunOutcome.WithLabelValues(o).Set(value)
	}
	m.lastRunTime.Set(float64(finished.Unix()))
}

// Gatherer returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the registry to path in the node_exporter textfile
// collector format. It is a no-op when disabled or no path is configured.
func (m *Metrics) WriteTextfile(path string) error {
	if m.registry == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on the configured listen address until ctx is done.
func (m *Metrics) Serve(ctx context.Context) error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

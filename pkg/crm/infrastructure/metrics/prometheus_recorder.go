package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	coremetrics "github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the coremetrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run Metrics
	runCounter         *prometheus.CounterVec
	runDurationSeconds prometheus.Histogram
	runSuccessRate     prometheus.Gauge

	// Stage Metrics
	stageDurationSeconds *prometheus.HistogramVec
	stageRecordCount     *prometheus.CounterVec

	// Chunk Metrics
	chunkDurationSeconds *prometheus.HistogramVec
	chunkAttempts        *prometheus.HistogramVec
	chunkRetryCounter    *prometheus.CounterVec

	// Record Metrics
	validationErrorCounter *prometheus.CounterVec
	associationCounter     *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmimport_runs_total",
			Help: "Total number of import runs by status.",
		}, []string{"status"}),
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crmimport_run_duration_seconds",
			Help:    "Duration of import runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		runSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crmimport_run_success_rate_percent",
			Help: "Overall success rate of the last finished run.",
		}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmimport_stage_duration_seconds",
			Help:    "Duration of import stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageRecordCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmimport_records_total",
			Help: "Total records processed by stage and outcome.",
		}, []string{"stage", "outcome"}),
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmimport_chunk_duration_seconds",
			Help:    "Duration of chunk submissions including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "state"}),
		chunkAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmimport_chunk_attempts",
			Help:    "Number of sends per chunk.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}, []string{"stage"}),
		chunkRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmimport_chunk_retries_total",
			Help: "Total chunk retries by reason.",
		}, []string{"stage", "reason"}),
		validationErrorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmimport_validation_errors_total",
			Help: "Total validation errors by entity and kind.",
		}, []string{"entity", "kind"}),
		associationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmimport_associations_total",
			Help: "Total association edges by kind and outcome.",
		}, []string{"kind", "success"}),
	}

	registry.MustRegister(
		r.runCounter,
		r.runDurationSeconds,
		r.runSuccessRate,
		r.stageDurationSeconds,
		r.stageRecordCount,
		r.chunkDurationSeconds,
		r.chunkAttempts,
		r.chunkRetryCounter,
		r.validationErrorCounter,
		r.associationCounter,
	)

	logger.Debugf("PrometheusRecorder initialized.")
	return r
}

// Registry returns the registry holding the import metrics.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordRunStart implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, runID string) {
	r.runCounter.WithLabelValues("started").Inc()
	logger.Debugf("Prometheus: run '%s' started.", runID)
}

// RecordRunEnd implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, report *model.Report) {
	status := "completed"
	if report.Interrupted {
		status = "interrupted"
	}
	r.runCounter.WithLabelValues(status).Inc()
	r.runDurationSeconds.Observe(report.Duration.Seconds())
	r.runSuccessRate.Set(report.SuccessRate)
	logger.Debugf("Prometheus: run '%s' %s (success rate %.2f%%).", report.RunID, status, report.SuccessRate)
}

// RecordStageEnd implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordStageEnd(ctx context.Context, stage string, result *model.ImportResult) {
	r.stageDurationSeconds.WithLabelValues(stage).Observe(result.Duration.Seconds())
	r.stageRecordCount.WithLabelValues(stage, "succeeded").Add(float64(result.Succeeded))
	r.stageRecordCount.WithLabelValues(stage, "failed").Add(float64(result.Failed))
}

// RecordChunk implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordChunk(ctx context.Context, stage string, state string, size int, attempts int, duration time.Duration) {
	r.chunkDurationSeconds.WithLabelValues(stage, state).Observe(duration.Seconds())
	r.chunkAttempts.WithLabelValues(stage).Observe(float64(attempts))
}

// RecordRetry implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, stage string, reason string) {
	r.chunkRetryCounter.WithLabelValues(stage, reason).Inc()
}

// RecordValidationError implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordValidationError(ctx context.Context, entity model.EntityType, kind model.ValidationErrorKind) {
	r.validationErrorCounter.WithLabelValues(string(entity), string(kind)).Inc()
}

// RecordAssociation implements coremetrics.MetricRecorder.
func (r *PrometheusRecorder) RecordAssociation(ctx context.Context, kind model.RelationKind, success bool) {
	r.associationCounter.WithLabelValues(string(kind), strconv.FormatBool(success)).Inc()
}

var _ coremetrics.MetricRecorder = (*PrometheusRecorder)(nil)

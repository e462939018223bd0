package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	coremetrics "github.com/tigerroll/crmimport/pkg/crm/core/metrics"
)

var (
	attrStage   = attribute.Key("crm.stage")
	attrStatus  = attribute.Key("crm.status")
	attrOutcome = attribute.Key("crm.outcome")
	attrState   = attribute.Key("crm.chunk.state")
	attrReason  = attribute.Key("crm.retry.reason")
	attrEntity  = attribute.Key("crm.entity")
	attrKind    = attribute.Key("crm.kind")
	attrSuccess = attribute.Key("crm.success")
)

// OTelRecorder records import metrics through an OpenTelemetry meter.
type OTelRecorder struct {
	runs             metric.Int64Counter
	runDuration      metric.Float64Histogram
	runSuccessRate   metric.Float64Gauge
	records          metric.Int64Counter
	stageDuration    metric.Float64Histogram
	chunkDuration    metric.Float64Histogram
	chunkAttempts    metric.Int64Histogram
	retries          metric.Int64Counter
	validationErrors metric.Int64Counter
	associations     metric.Int64Counter
}

// NewOTelRecorder creates the instruments on meter.
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	r := &OTelRecorder{}
	var err error

	if r.runs, err = meter.Int64Counter("crmimport.runs",
		metric.WithDescription("Import runs by status."), metric.WithUnit("{run}")); err != nil {
		return nil, fmt.Errorf("failed to create counter crmimport.runs: %w", err)
	}
	if r.runDuration, err = meter.Float64Histogram("crmimport.run.duration",
		metric.WithDescription("Duration of import runs."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create histogram crmimport.run.duration: %w", err)
	}
	if r.runSuccessRate, err = meter.Float64Gauge("crmimport.run.success_rate",
		metric.WithDescription("Overall success rate of the last finished run."), metric.WithUnit("%")); err != nil {
		return nil, fmt.Errorf("failed to create gauge crmimport.run.success_rate: %w", err)
	}
	if r.records, err = meter.Int64Counter("crmimport.records",
		metric.WithDescription("Records processed by stage and outcome."), metric.WithUnit("{record}")); err != nil {
		return nil, fmt.Errorf("failed to create counter crmimport.records: %w", err)
	}
	if r.stageDuration, err = meter.Float64Histogram("crmimport.stage.duration",
		metric.WithDescription("Duration of import stages."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create histogram crmimport.stage.duration: %w", err)
	}
	if r.chunkDuration, err = meter.Float64Histogram("crmimport.chunk.duration",
		metric.WithDescription("Duration of chunk submissions including retries."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create histogram crmimport.chunk.duration: %w", err)
	}
	if r.chunkAttempts, err = meter.Int64Histogram("crmimport.chunk.attempts",
		metric.WithDescription("Number of sends per chunk."), metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("failed to create histogram crmimport.chunk.attempts: %w", err)
	}
	if r.retries, err = meter.Int64Counter("crmimport.chunk.retries",
		metric.WithDescription("Chunk retries by reason."), metric.WithUnit("{retry}")); err != nil {
		return nil, fmt.Errorf("failed to create counter crmimport.chunk.retries: %w", err)
	}
	if r.validationErrors, err = meter.Int64Counter("crmimport.validation_errors",
		metric.WithDescription("Validation errors by entity and kind."), metric.WithUnit("{error}")); err != nil {
		return nil, fmt.Errorf("failed to create counter crmimport.validation_errors: %w", err)
	}
	if r.associations, err = meter.Int64Counter("crmimport.associations",
		metric.WithDescription("Association edges by kind and outcome."), metric.WithUnit("{edge}")); err != nil {
		return nil, fmt.Errorf("failed to create counter crmimport.associations: %w", err)
	}
	return r, nil
}

// RecordRunStart implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordRunStart(ctx context.Context, runID string) {
	r.runs.Add(ctx, 1, metric.WithAttributes(attrStatus.String("started")))
}

// RecordRunEnd implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordRunEnd(ctx context.Context, report *model.Report) {
	status := "completed"
	if report.Interrupted {
		status = "interrupted"
	}
	r.runs.Add(ctx, 1, metric.WithAttributes(attrStatus.String(status)))
	r.runDuration.Record(ctx, report.Duration.Seconds())
	r.runSuccessRate.Record(ctx, report.SuccessRate)
}

// RecordStageEnd implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordStageEnd(ctx context.Context, stage string, result *model.ImportResult) {
	r.stageDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attrStage.String(stage)))
	r.records.Add(ctx, int64(result.Succeeded), metric.WithAttributes(attrStage.String(stage), attrOutcome.String("succeeded")))
	r.records.Add(ctx, int64(result.Failed), metric.WithAttributes(attrStage.String(stage), attrOutcome.String("failed")))
}

// RecordChunk implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordChunk(ctx context.Context, stage string, state string, size int, attempts int, duration time.Duration) {
	r.chunkDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrStage.String(stage), attrState.String(state)))
	r.chunkAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attrStage.String(stage)))
}

// RecordRetry implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordRetry(ctx context.Context, stage string, reason string) {
	r.retries.Add(ctx, 1, metric.WithAttributes(attrStage.String(stage), attrReason.String(reason)))
}

// RecordValidationError implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordValidationError(ctx context.Context, entity model.EntityType, kind model.ValidationErrorKind) {
	r.validationErrors.Add(ctx, 1, metric.WithAttributes(attrEntity.String(string(entity)), attrKind.String(string(kind))))
}

// RecordAssociation implements coremetrics.MetricRecorder.
func (r *OTelRecorder) RecordAssociation(ctx context.Context, kind model.RelationKind, success bool) {
	r.associations.Add(ctx, 1, metric.WithAttributes(attrKind.String(string(kind)), attrSuccess.Bool(success)))
}

var _ coremetrics.MetricRecorder = (*OTelRecorder)(nil)

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	coremetrics "github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// OpenTelemetryTracer is an implementation of coremetrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a new instance of OpenTelemetryTracer.
func NewOpenTelemetryTracer(tracer trace.Tracer) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tracer}
}

// StartRunSpan starts the root span of an import run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, runID string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "import.run", trace.WithAttributes(attribute.String("crm.run_id", runID)))
	logger.Debugf("Tracer: started span for run '%s' (trace %s)", runID, span.SpanContext().TraceID())
	return ctx, func() { span.End() }
}

// StartStageSpan starts a span for one stage.
func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, stage string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "import.stage."+stage, trace.WithAttributes(attrStage.String(stage)))
	return ctx, func() { span.End() }
}

// StartChunkSpan starts a span for one chunk of a stage.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, batch model.EntityBatch) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "import.chunk", trace.WithAttributes(
		attrEntity.String(string(batch.EntityType)),
		attribute.Int("crm.chunk.number", batch.Number),
		attribute.Int("crm.chunk.size", len(batch.Records)),
	))
	return ctx, func() { span.End() }
}

// RecordError records err on the current span and marks it failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(attribute.String("crm.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds a named event to the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

var _ coremetrics.Tracer = (*OpenTelemetryTracer)(nil)

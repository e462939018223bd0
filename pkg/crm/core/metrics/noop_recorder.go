package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// NoOpMetricRecorder discards every metric.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a recorder that does nothing.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, runID string) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, report *model.Report) {}
func (r *NoOpMetricRecorder) RecordStageEnd(ctx context.Context, stage string, result *model.ImportResult) {
}
func (r *NoOpMetricRecorder) RecordChunk(ctx context.Context, stage string, state string, size int, attempts int, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, stage string, reason string) {}
func (r *NoOpMetricRecorder) RecordValidationError(ctx context.Context, entity model.EntityType, kind model.ValidationErrorKind) {
}
func (r *NoOpMetricRecorder) RecordAssociation(ctx context.Context, kind model.RelationKind, success bool) {
}

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a tracer that does nothing.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, runID string) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStageSpan(ctx context.Context, stage string) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, batch model.EntityBatch) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var (
	_ MetricRecorder = (*NoOpMetricRecorder)(nil)
	_ Tracer         = (*NoOpTracer)(nil)
)

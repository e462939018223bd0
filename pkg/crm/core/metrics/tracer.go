package metrics

import (
	"context"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of import runs.
// Each Start method returns a context carrying the new span and a function that ends it;
// callers should defer the returned function.
type Tracer interface {
	// StartRunSpan starts the root span of a run.
	StartRunSpan(ctx context.Context, runID string) (context.Context, func())

	// StartStageSpan starts a span for one stage (entity type, "associations", ...).
	StartStageSpan(ctx context.Context, stage string) (context.Context, func())

	// StartChunkSpan starts a span for one chunk of a stage.
	StartChunkSpan(ctx context.Context, batch model.EntityBatch) (context.Context, func())

	// RecordError records an error in the current span.
	//
	// module: The component where the error occurred (e.g., "batch", "orchestrator").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	//
	// attributes: Additional attributes, e.g. `map[string]interface{}{"attempt": 2}`.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

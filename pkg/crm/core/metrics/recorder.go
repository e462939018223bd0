// Package metrics defines the observability ports of the import engine:
// a MetricRecorder for counters and durations and a Tracer for spans.
package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// MetricRecorder records metrics about an import run.
// Implementations must be cheap and must never fail the run.
type MetricRecorder interface {
	// RecordRunStart records the start of an import run.
	RecordRunStart(ctx context.Context, runID string)

	// RecordRunEnd records the final report of a run.
	RecordRunEnd(ctx context.Context, report *model.Report)

	// RecordStageEnd records the result of one entity type or association kind.
	//
	// ctx: The context for the operation.
	// stage: The entity type or relation kind name.
	// result: The stage result.
	RecordStageEnd(ctx context.Context, stage string, result *model.ImportResult)

	// RecordChunk records the terminal state of one chunk.
	//
	// ctx: The context for the operation.
	// stage: The entity type or relation kind name.
	// state: The terminal chunk state ("succeeded" or "failed").
	// size: The number of records in the chunk.
	// attempts: The number of sends it took.
	// duration: Wall time spent on the chunk including retries.
	RecordChunk(ctx context.Context, stage string, state string, size int, attempts int, duration time.Duration)

	// RecordRetry records one retry of a chunk.
	//
	// reason: The error category that caused the retry (e.g., "RateLimited").
	RecordRetry(ctx context.Context, stage string, reason string)

	// RecordValidationError records one validation error by kind.
	RecordValidationError(ctx context.Context, entity model.EntityType, kind model.ValidationErrorKind)

	// RecordAssociation records the outcome of one association edge.
	RecordAssociation(ctx context.Context, kind model.RelationKind, success bool)
}

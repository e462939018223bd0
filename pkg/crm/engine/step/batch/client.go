// Package batch submits records and association edges to the remote store in fixed-size
// chunks, with retries, pacing and per-chunk failure isolation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/engine/step/retry"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// MaxChunkSize is the largest chunk the remote batch endpoint accepts.
const MaxChunkSize = 100

// AssociationsStage is the stage name used for association metrics and spans.
const AssociationsStage = "associations"

// Client submits chunks sequentially. It is not safe for concurrent use by multiple runs.
type Client struct {
	store     port.ObjectStore
	batchSize int
	delay     time.Duration

	retrier  *retry.Retrier
	sleep    retry.Sleeper
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSleeper replaces the Sleeper used for inter-chunk delays and retry waits.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithRecorder sets the metric recorder.
func WithRecorder(r metrics.MetricRecorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithClock replaces time.Now for duration measurements.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a Client for store using the import configuration.
// Batch sizes outside 1..MaxChunkSize are clamped.
func NewClient(store port.ObjectStore, cfg *config.ImportConfig, opts ...Option) *Client {
	size := cfg.BatchSize
	if size < 1 || size > MaxChunkSize {
		size = MaxChunkSize
	}
	c := &Client{
		store:     store,
		batchSize: size,
		delay:     cfg.DelayBetweenBatchesDuration(),
		sleep:     retry.ContextSleep,
		recorder:  metrics.NewNoOpMetricRecorder(),
		tracer:    metrics.NewNoOpTracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	policy := retry.NewDefaultRetryPolicyFactory().Create(cfg.Retry)
	c.retrier = retry.NewRetrier(policy,
		time.Duration(cfg.Retry.RateLimitInterval)*time.Millisecond,
		retry.WithSleeper(c.sleep),
	)
	return c
}

// BatchSize returns the effective chunk size.
func (c *Client) BatchSize() int {
	return c.batchSize
}

// Submit creates records of one entity type. Each record ends up either with a RemoteID
// and a success entry, or with exactly one failure entry in the returned result.
// A failed chunk never prevents the next one from being sent.
func (c *Client) Submit(ctx context.Context, entity model.EntityType, records []*model.Record) *model.ImportResult {
	result := model.NewImportResult(string(entity))
	start := c.now()
	defer func() { result.Duration = c.now().Sub(start) }()

	chunks := model.Partition(entity, records, c.batchSize)
	for i, chunk := range chunks {
		if i > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				c.cancelRemaining(chunks[i:], result, err)
				return result
			}
		}
		if err := ctx.Err(); err != nil {
			c.cancelRemaining(chunks[i:], result, err)
			return result
		}
		logger.Debugf("Submitting %s chunk %d/%d (%d records).", entity, i+1, len(chunks), len(chunk.Records))
		c.submitChunk(ctx, chunk, result)
	}
	return result
}

func (c *Client) submitChunk(ctx context.Context, chunk model.EntityBatch, result *model.ImportResult) {
	ctx, end := c.tracer.StartChunkSpan(ctx, chunk)
	defer end()

	stage := string(chunk.EntityType)
	started := c.now()
	state := ChunkPending
	move := func(next ChunkState, attempt int) {
		logger.Debugf("%s chunk %d: %s -> %s (attempt %d)", stage, chunk.Number, state, next, attempt)
		state = next
	}

	var outcomes []port.CreateOutcome
	attempts, err := c.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			c.recorder.RecordRetry(ctx, stage, state.String())
			c.tracer.RecordEvent(ctx, "chunk.retry", map[string]interface{}{"attempt": attempt, "after": state.String()})
		}
		move(ChunkSent, attempt)
		out, err := c.store.BatchCreate(ctx, chunk.EntityType, chunk.Records)
		if err != nil {
			move(stateFor(err), attempt)
			return err
		}
		outcomes = out
		move(ChunkSucceeded, attempt)
		return nil
	})

	if err != nil {
		move(ChunkFailed, attempts)
		kind, status := failureFor(err)
		msg := exception.ExtractErrorMessage(err)
		logger.Warnf("%s chunk %d failed after %d attempt(s): %v", stage, chunk.Number, attempts, err)
		c.tracer.RecordError(ctx, "batch", err)
		for _, r := range chunk.Records {
			result.AddFailure(model.RecordFailure{Index: r.Index, Chunk: chunk.Number, Kind: kind, StatusCode: status, Message: msg})
		}
		c.recorder.RecordChunk(ctx, stage, state.String(), len(chunk.Records), attempts, c.now().Sub(started))
		return
	}

	c.applyOutcomes(chunk, outcomes, result)
	c.recorder.RecordChunk(ctx, stage, state.String(), len(chunk.Records), attempts, c.now().Sub(started))
}

// applyOutcomes matches per-record outcomes to the chunk's records by index.
func (c *Client) applyOutcomes(chunk model.EntityBatch, outcomes []port.CreateOutcome, result *model.ImportResult) {
	byIndex := make(map[int]port.CreateOutcome, len(outcomes))
	for _, o := range outcomes {
		byIndex[o.Index] = o
	}
	for _, r := range chunk.Records {
		o, ok := byIndex[r.Index]
		switch {
		case !ok || (o.Err == nil && o.RemoteID == ""):
			result.AddFailure(model.RecordFailure{
				Index: r.Index, Chunk: chunk.Number, Kind: model.FailureMissingResult,
				Message: "record missing from batch response",
			})
		case o.Err != nil:
			_, status := failureFor(o.Err)
			result.AddFailure(model.RecordFailure{
				Index: r.Index, Chunk: chunk.Number, Kind: model.FailurePermanent,
				StatusCode: status, Message: exception.ExtractErrorMessage(o.Err),
			})
		default:
			r.RemoteID = o.RemoteID
			result.AddSuccess(r.Index, o.RemoteID)
		}
	}
}

func (c *Client) cancelRemaining(chunks []model.EntityBatch, result *model.ImportResult, cause error) {
	for _, chunk := range chunks {
		for _, r := range chunk.Records {
			result.AddFailure(model.RecordFailure{
				Index: r.Index, Chunk: chunk.Number, Kind: model.FailureCancelled, Message: cause.Error(),
			})
		}
	}
}

// CreateAssociations creates every edge, one call per edge, grouped by kind and paced in
// groups of the chunk size. Failed edges are recorded and never re-queued.
// The returned map has an entry for every relation kind.
func (c *Client) CreateAssociations(ctx context.Context, edges []model.AssociationEdge) map[model.RelationKind]*model.ImportResult {
	results := make(map[model.RelationKind]*model.ImportResult, len(model.RelationKinds))
	byKind := make(map[model.RelationKind][]model.AssociationEdge)
	for _, e := range edges {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var cancelled error
	first := true
	for _, kind := range model.RelationKinds {
		result := model.NewImportResult(string(kind))
		results[kind] = result
		start := c.now()

		for n, group := range split(byKind[kind], c.batchSize) {
			if cancelled == nil && !first {
				if err := c.sleep(ctx, c.delay); err != nil {
					cancelled = err
				}
			}
			first = false
			if cancelled == nil {
				cancelled = ctx.Err()
			}
			for _, e := range group {
				if cancelled != nil {
					result.AddFailure(model.RecordFailure{
						Index: e.Source.Index, Chunk: n, Kind: model.FailureCancelled, Message: cancelled.Error(),
					})
					continue
				}
				if err := c.createEdge(ctx, e); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						cancelled = err
					}
					failure, status := failureFor(err)
					result.AddFailure(model.RecordFailure{
						Index: e.Source.Index, Chunk: n, Kind: failure, StatusCode: status,
						Message: exception.ExtractErrorMessage(err),
					})
					c.recorder.RecordAssociation(ctx, e.Kind, false)
					continue
				}
				result.AddLink(e.Source.Index, e.Source.RemoteID, e.Target.RemoteID)
				c.recorder.RecordAssociation(ctx, e.Kind, true)
			}
		}
		result.Duration = c.now().Sub(start)
	}
	return results
}

func (c *Client) createEdge(ctx context.Context, e model.AssociationEdge) error {
	if e.Source.RemoteID == "" || e.Target.RemoteID == "" {
		return exception.NewPermanentError(0, fmt.Sprintf("edge %s has an endpoint without remote id", e), nil)
	}
	_, err := c.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			c.recorder.RecordRetry(ctx, AssociationsStage, string(e.Kind))
		}
		return c.store.CreateAssociation(ctx, e.Source.RemoteID, e.Target.RemoteID, e.Kind)
	})
	if err != nil {
		logger.Warnf("Association %s failed: %v", e, err)
	}
	return err
}

// stateFor maps a send error to the chunk state it leaves the chunk in.
func stateFor(err error) ChunkState {
	cat, ok := exception.CategoryOf(err)
	switch {
	case ok && cat == exception.CategoryRateLimited:
		return ChunkRateLimited
	case ok && cat == exception.CategoryTransient:
		var re *exception.RemoteError
		if errors.As(err, &re) && re.StatusCode == 0 {
			return ChunkNetworkError
		}
		return ChunkServerError
	case exception.IsRetryable(err):
		return ChunkNetworkError
	default:
		return ChunkFailed
	}
}

// failureFor maps a final error to the recorded failure kind and HTTP status.
func failureFor(err error) (model.FailureKind, int) {
	status := 0
	var re *exception.RemoteError
	if errors.As(err, &re) {
		status = re.StatusCode
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.FailureCancelled, status
	}
	cat, ok := exception.CategoryOf(err)
	switch {
	case ok && cat == exception.CategoryRateLimited:
		return model.FailureRateLimited, status
	case ok && cat == exception.CategoryTransient:
		return model.FailureTransient, status
	case ok:
		return model.FailurePermanent, status
	case exception.IsRetryable(err):
		return model.FailureTransient, status
	default:
		return model.FailurePermanent, status
	}
}

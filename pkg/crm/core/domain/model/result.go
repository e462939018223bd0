package model

import (
	"math"
	"time"
)

// FailureKind classifies why a record (or association edge) was not created.
type FailureKind string

const (
	// FailureValidation marks a row rejected by the validator.
	FailureValidation FailureKind = "validation"
	// FailureValidationAbort marks a valid row withheld because the abort policy rejected its batch.
	FailureValidationAbort FailureKind = "validation_abort"
	// FailurePermanent marks a non-retryable rejection by the CRM.
	FailurePermanent FailureKind = "permanent"
	// FailureTransient marks a chunk whose transient errors exhausted the retry budget.
	FailureTransient FailureKind = "transient"
	// FailureRateLimited marks a chunk that was still rate limited after the last attempt.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureMissingResult marks a record absent from an otherwise successful response.
	FailureMissingResult FailureKind = "missing_result"
	// FailureCancelled marks records never sent because the run was interrupted.
	FailureCancelled FailureKind = "cancelled"
)

// CreatedRecord pairs a source row with the identifier the CRM assigned to it.
// For association results Index and RemoteID describe the source object of the edge
// and TargetRemoteID the object it was linked to.
type CreatedRecord struct {
	Index          int
	RemoteID       string
	TargetRemoteID string
}

// RecordFailure attributes a failure to a source row and the chunk it travelled in.
type RecordFailure struct {
	Index int
	// Chunk is the 0-based chunk number, or -1 when the record was never chunked.
	Chunk      int
	Kind       FailureKind
	StatusCode int
	Message    string
}

// ImportResult accumulates the outcome of one stage: an entity type or an association kind.
type ImportResult struct {
	Name             string
	Attempted        int
	Succeeded        int
	Failed           int
	Created          []CreatedRecord
	Failures         []RecordFailure
	ValidationErrors []ValidationError
	// Completeness is the percentage of non-empty cells in the stage input.
	Completeness float64
	// Aborted is set when the validation policy withheld the whole stage.
	Aborted  bool
	Duration time.Duration
}

// NewImportResult creates an empty result for the named stage.
func NewImportResult(name string) *ImportResult {
	return &ImportResult{Name: name}
}

// AddSuccess records a created record.
func (r *ImportResult) AddSuccess(index int, remoteID string) {
	r.Attempted++
	r.Succeeded++
	r.Created = append(r.Created, CreatedRecord{Index: index, RemoteID: remoteID})
}

// AddLink records a created association between sourceID and targetID. index is the
// row of the source record.
func (r *ImportResult) AddLink(index int, sourceID, targetID string) {
	r.Attempted++
	r.Succeeded++
	r.Created = append(r.Created, CreatedRecord{Index: index, RemoteID: sourceID, TargetRemoteID: targetID})
}

// AddFailure records a record that was not created.
func (r *ImportResult) AddFailure(f RecordFailure) {
	r.Attempted++
	r.Failed++
	r.Failures = append(r.Failures, f)
}

// Merge folds other into r. Durations add up.
func (r *ImportResult) Merge(other *ImportResult) {
	if other == nil {
		return
	}
	r.Attempted += other.Attempted
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Created = append(r.Created, other.Created...)
	r.Failures = append(r.Failures, other.Failures...)
	r.ValidationErrors = append(r.ValidationErrors, other.ValidationErrors...)
	r.Aborted = r.Aborted || other.Aborted
	r.Duration += other.Duration
}

// SuccessRate returns the stage success rate as a percentage.
func (r *ImportResult) SuccessRate() float64 {
	return SuccessRate(r.Succeeded, r.Attempted)
}

// FailuresByKind counts failures per kind.
func (r *ImportResult) FailuresByKind() map[FailureKind]int {
	counts := make(map[FailureKind]int)
	for _, f := range r.Failures {
		counts[f.Kind]++
	}
	return counts
}

// SuccessRate returns succeeded/attempted as a percentage rounded to two decimals.
// Zero attempts yields 0.
func SuccessRate(succeeded, attempted int) float64 {
	if attempted <= 0 {
		return 0
	}
	return math.Round(float64(succeeded)/float64(attempted)*10000) / 100
}

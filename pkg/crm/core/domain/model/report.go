package model

import "time"

// Report is the structured outcome of one import run. It is plain data;
// rendering is left to the caller.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Entities     map[EntityType]*ImportResult
	Associations map[RelationKind]*ImportResult

	// Overall figures cover the three entity types; associations are reported separately.
	Attempted   int
	Succeeded   int
	Failed      int
	SuccessRate float64

	AssociationsCreated int
	Duration            time.Duration

	ValidationPolicy string
	// Interrupted is set when the run was cancelled before every stage completed.
	Interrupted bool
}

// NewReport creates an empty report with a result slot for every entity type and relation kind.
func NewReport(runID string, startedAt time.Time, validationPolicy string) *Report {
	r := &Report{
		RunID:            runID,
		StartedAt:        startedAt,
		Entities:         make(map[EntityType]*ImportResult, len(ImportOrder)),
		Associations:     make(map[RelationKind]*ImportResult, len(RelationKinds)),
		ValidationPolicy: validationPolicy,
	}
	for _, e := range ImportOrder {
		r.Entities[e] = NewImportResult(string(e))
	}
	for _, k := range RelationKinds {
		r.Associations[k] = NewImportResult(string(k))
	}
	return r
}

// Entity returns the result for entity, never nil.
func (r *Report) Entity(entity EntityType) *ImportResult {
	if res, ok := r.Entities[entity]; ok && res != nil {
		return res
	}
	res := NewImportResult(string(entity))
	r.Entities[entity] = res
	return res
}

// Association returns the result for kind, never nil.
func (r *Report) Association(kind RelationKind) *ImportResult {
	if res, ok := r.Associations[kind]; ok && res != nil {
		return res
	}
	res := NewImportResult(string(kind))
	r.Associations[kind] = res
	return res
}

// AssociationCount returns the number of edges of kind that were created.
func (r *Report) AssociationCount(kind RelationKind) int {
	if res, ok := r.Associations[kind]; ok && res != nil {
		return res.Succeeded
	}
	return 0
}

// Finalize computes the overall figures and stamps the finish time.
func (r *Report) Finalize(finishedAt time.Time) {
	r.FinishedAt = finishedAt
	r.Duration = finishedAt.Sub(r.StartedAt)

	r.Attempted, r.Succeeded, r.Failed = 0, 0, 0
	for _, e := range ImportOrder {
		res := r.Entity(e)
		r.Attempted += res.Attempted
		r.Succeeded += res.Succeeded
		r.Failed += res.Failed
	}
	r.SuccessRate = SuccessRate(r.Succeeded, r.Attempted)

	r.AssociationsCreated = 0
	for _, k := range RelationKinds {
		r.AssociationsCreated += r.AssociationCount(k)
	}
}

// ValidationErrorCount returns the total number of validation errors across entity types.
func (r *Report) ValidationErrorCount() int {
	n := 0
	for _, res := range r.Entities {
		n += len(res.ValidationErrors)
	}
	return n
}

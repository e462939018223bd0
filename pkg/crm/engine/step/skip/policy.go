// Package skip bounds how many flagged rows an entity stage may leave out before the
// stage is withheld as a whole.
package skip

import (
	"errors"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
)

// Policy decides, row by row, whether a flagged row may be dropped from its entity batch.
type Policy interface {
	// Skip reports whether the row that failed with err may be dropped, and counts it when it may.
	Skip(err error) bool
	// Exhausted reports whether the limit has been reached.
	Exhausted() bool
	// Skipped returns the number of rows dropped so far.
	Skipped() int
	// Limit returns the configured limit; config.UnlimitedSkips means none.
	Limit() int
}

// skippable is implemented by model.ValidationError and exception.BatchError.
type skippable interface {
	IsSkippable() bool
}

// RowPolicy is the Policy used by the orchestrator. It is scoped to one entity stage.
type RowPolicy struct {
	limit   int
	skipped int
	// extra lists registered error names treated as skippable on top of IsSkippable.
	extra []string
}

// NewRowPolicy creates a policy allowing up to limit skips. Limits below
// config.UnlimitedSkips are treated as zero.
func NewRowPolicy(limit int, skippableErrors ...string) *RowPolicy {
	if limit < config.UnlimitedSkips {
		limit = 0
	}
	return &RowPolicy{limit: limit, extra: skippableErrors}
}

// Skip implements Policy.
func (p *RowPolicy) Skip(err error) bool {
	if err == nil || p.Exhausted() || !p.skippable(err) {
		return false
	}
	p.skipped++
	return true
}

func (p *RowPolicy) skippable(err error) bool {
	var s skippable
	if errors.As(err, &s) && s.IsSkippable() {
		return true
	}
	for _, name := range p.extra {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

// Exhausted implements Policy.
func (p *RowPolicy) Exhausted() bool {
	return p.limit != config.UnlimitedSkips && p.skipped >= p.limit
}

// Skipped implements Policy.
func (p *RowPolicy) Skipped() int {
	return p.skipped
}

// Limit implements Policy.
func (p *RowPolicy) Limit() int {
	return p.limit
}

var _ Policy = (*RowPolicy)(nil)

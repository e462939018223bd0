// Package port declares the collaborators the import engine depends on:
// the remote object store and the run journal.
package port

import (
	"context"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// CreateOutcome is the per-record result of a BatchCreate call.
// Exactly one of RemoteID and Err is set.
type CreateOutcome struct {
	// Index is the record's local index (its source row).
	Index    int
	RemoteID string
	Err      error
}

// ObjectStore is the remote CRM as seen by the engine.
// Both operations report rate limiting and transient failures through the
// exception.RemoteError taxonomy so that the retry logic can consume them.
type ObjectStore interface {
	// BatchCreate creates one chunk of records of a single entity type.
	// A returned error applies to the whole chunk; per-record failures are reported in the outcomes.
	BatchCreate(ctx context.Context, entity model.EntityType, records []*model.Record) ([]CreateOutcome, error)
	// CreateAssociation links two remote objects.
	CreateAssociation(ctx context.Context, sourceID, targetID string, kind model.RelationKind) error
}

// CredentialsVerifier is implemented by stores that can check credentials before an import.
type CredentialsVerifier interface {
	VerifyCredentials(ctx context.Context) error
}

// ContactFinder is implemented by stores that can look up existing contacts by email.
type ContactFinder interface {
	// FindContactByEmail returns the remote ID of the contact with the given email, if any.
	FindContactByEmail(ctx context.Context, email string) (string, bool, error)
}

// Journal persists the progress of import runs.
type Journal interface {
	// BeginRun records the start of a run.
	BeginRun(ctx context.Context, report *model.Report) error
	// RecordStage records a finished stage together with the outcome of every record in it.
	RecordStage(ctx context.Context, runID string, stage string, result *model.ImportResult) error
	// FinishRun records the final figures of a run.
	FinishRun(ctx context.Context, report *model.Report) error
	// Close releases the journal's resources.
	Close() error
}

// NoopJournal is used when no journal is configured.
type NoopJournal struct{}

func (NoopJournal) BeginRun(ctx context.Context, report *model.Report) error { return nil }
func (NoopJournal) RecordStage(ctx context.Context, runID string, stage string, result *model.ImportResult) error {
	return nil
}
func (NoopJournal) FinishRun(ctx context.Context, report *model.Report) error { return nil }
func (NoopJournal) Close() error { return nil }

var _ Journal = NoopJournal{}

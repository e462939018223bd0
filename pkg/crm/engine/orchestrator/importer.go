// Package orchestrator runs an import: preflight, the three entity stages in dependency
// order, association creation and the final report.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/engine/associate"
	"github.com/tigerroll/crmimport/pkg/crm/engine/extract"
	"github.com/tigerroll/crmimport/pkg/crm/engine/step/batch"
	"github.com/tigerroll/crmimport/pkg/crm/engine/step/retry"
	"github.com/tigerroll/crmimport/pkg/crm/engine/step/skip"
	"github.com/tigerroll/crmimport/pkg/crm/engine/validate"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// Importer runs import runs against one object store. Runs must not overlap.
type Importer struct {
	store     port.ObjectStore
	cfg       *config.ImportConfig
	client    *batch.Client
	validator *validate.Validator
	resolver  *associate.Resolver
	journal   port.Journal
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
	sleep     retry.Sleeper
	now       func() time.Time
	newRunID  func() string
}

// Option configures an Importer.
type Option func(*Importer)

// WithJournal persists run progress to j.
func WithJournal(j port.Journal) Option {
	return func(i *Importer) {
		if j != nil {
			i.journal = j
		}
	}
}

// WithRecorder sets the metric recorder.
func WithRecorder(r metrics.MetricRecorder) Option {
	return func(i *Importer) {
		if r != nil {
			i.recorder = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(i *Importer) {
		if t != nil {
			i.tracer = t
		}
	}
}

// WithSleeper replaces the Sleeper used for pacing and retry waits.
func WithSleeper(s retry.Sleeper) Option {
	return func(i *Importer) {
		if s != nil {
			i.sleep = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithRunIDGenerator replaces the uuid run ID generator.
func WithRunIDGenerator(gen func() string) Option {
	return func(i *Importer) {
		if gen != nil {
			i.newRunID = gen
		}
	}
}

// NewImporter creates an Importer submitting to store.
func NewImporter(store port.ObjectStore, cfg *config.ImportConfig, opts ...Option) *Importer {
	i := &Importer{
		store:     store,
		cfg:       cfg,
		validator: validate.NewValidatorForRegion(cfg.Validation.PhoneRegion),
		resolver:  associate.NewResolver(cfg.TicketTextFields),
		journal:   port.NoopJournal{},
		recorder:  metrics.NewNoOpMetricRecorder(),
		tracer:    metrics.NewNoOpTracer(),
		sleep:     retry.ContextSleep,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.client = batch.NewClient(store, cfg,
		batch.WithSleeper(i.sleep),
		batch.WithRecorder(i.recorder),
		batch.WithTracer(i.tracer),
		batch.WithClock(i.now),
	)
	return i
}

// Run imports in. It returns (nil, err) when preflight fails with a configuration error.
// Otherwise a report is always returned; if ctx is cancelled the report is marked
// Interrupted and ctx.Err() is returned alongside it.
func (i *Importer) Run(ctx context.Context, in Input) (*model.Report, error) {
	runID := i.newRunID()
	ctx, endRun := i.tracer.StartRunSpan(ctx, runID)
	defer endRun()

	logger.Infof("Import run '%s' starting: %d companies, %d contacts, %d tickets (validation policy: %s).",
		runID, len(in.Companies), len(in.Contacts), len(in.Tickets), i.cfg.Validation.Policy)

	if err := i.preflight(ctx); err != nil {
		i.tracer.RecordError(ctx, "orchestrator", err)
		logger.Errorf("Import run '%s' aborted during %s: %v", runID, StagePreflight, err)
		return nil, err
	}

	report := model.NewReport(runID, i.now(), i.cfg.Validation.Policy)
	journalCtx := context.WithoutCancel(ctx)
	i.recorder.RecordRunStart(ctx, runID)
	if err := i.journal.BeginRun(journalCtx, report); err != nil {
		logger.Warnf("Journal: failed to record start of run '%s': %v", runID, err)
	}

	for _, entity := range model.ImportOrder {
		res := i.runEntityStage(ctx, entity, in.Records(entity))
		report.Entities[entity] = res
		i.recordStage(journalCtx, runID, string(entity), res)
	}

	for kind, res := range i.runAssociationStage(ctx, in) {
		report.Associations[kind] = res
	}
	for _, kind := range model.RelationKinds {
		i.recordStage(journalCtx, runID, string(kind), report.Association(kind))
	}

	report.Finalize(i.now())
	runErr := ctx.Err()
	report.Interrupted = runErr != nil

	i.recorder.RecordRunEnd(ctx, report)
	if err := i.journal.FinishRun(journalCtx, report); err != nil {
		logger.Warnf("Journal: failed to record end of run '%s': %v", runID, err)
	}
	logger.Infof("Import run '%s' finished in %v: %d/%d records created (%.2f%%), %d associations, %d validation errors.",
		runID, report.Duration, report.Succeeded, report.Attempted, report.SuccessRate,
		report.AssociationsCreated, report.ValidationErrorCount())
	if report.Interrupted {
		logger.Warnf("Import run '%s' was interrupted: %v", runID, runErr)
	}
	return report, runErr
}

func (i *Importer) preflight(ctx context.Context) error {
	verifier, ok := i.store.(port.CredentialsVerifier)
	if !ok {
		return nil
	}
	if err := verifier.VerifyCredentials(ctx); err != nil {
		return exception.NewConfigurationError("orchestrator", "credentials verification failed", err)
	}
	logger.Debugf("Preflight: credentials verified.")
	return nil
}

func (i *Importer) recordStage(ctx context.Context, runID, stage string, res *model.ImportResult) {
	if err := i.journal.RecordStage(ctx, runID, stage, res); err != nil {
		logger.Warnf("Journal: failed to record stage '%s' of run '%s': %v", stage, runID, err)
	}
}

// runEntityStage validates, enriches and submits one entity type.
func (i *Importer) runEntityStage(ctx context.Context, entity model.EntityType, records []*model.Record) *model.ImportResult {
	ctx, end := i.tracer.StartStageSpan(ctx, string(entity))
	defer end()
	started := i.now()

	if entity == model.EntityTicket {
		found := extract.Enrich(records, i.cfg.TicketTextFields...)
		logger.Debugf("Extracted an email from %d of %d tickets.", found, len(records))
	}

	_, verrs := i.validator.Validate(entity, records)
	for _, ve := range verrs {
		i.recorder.RecordValidationError(ctx, entity, ve.Kind)
	}

	result, toSubmit := i.applyValidationPolicy(entity, records, verrs)
	result.Completeness = validate.Completeness(records)
	if len(toSubmit) > 0 {
		result.Merge(i.client.Submit(ctx, entity, toSubmit))
	}
	result.Duration = i.now().Sub(started)

	i.recorder.RecordStageEnd(ctx, string(entity), result)
	logger.Infof("Stage %s: %d/%d created (%.2f%%), %d failed, %d validation errors.",
		entity, result.Succeeded, result.Attempted, result.SuccessRate(), result.Failed, len(result.ValidationErrors))
	return result
}

// applyValidationPolicy turns validation errors into failures and returns the records to submit.
// Under the skip policy flagged rows are skipped until the skip limit is exceeded, at which
// point the whole entity batch is withheld, as it always is under the abort policy.
func (i *Importer) applyValidationPolicy(entity model.EntityType, records []*model.Record, verrs []model.ValidationError) (*model.ImportResult, []*model.Record) {
	result := model.NewImportResult(string(entity))
	result.ValidationErrors = verrs
	if len(verrs) == 0 {
		return result, records
	}

	firstError := make(map[int]model.ValidationError)
	for _, ve := range verrs {
		if _, ok := firstError[ve.Row]; !ok {
			firstError[ve.Row] = ve
		}
	}

	abort := i.cfg.Validation.Policy == config.PolicyAbort
	if !abort {
		policy := skip.NewRowPolicy(i.cfg.Validation.SkipLimit)
		for _, r := range records {
			ve, flagged := firstError[r.Index]
			if !flagged {
				continue
			}
			if !policy.Skip(ve) {
				logger.Warnf("Stage %s: skip limit %d exceeded; withholding the whole batch.", entity, policy.Limit())
				abort = true
				break
			}
		}
	}

	if abort {
		logger.Warnf("Stage %s aborted by validation: %v", entity, validate.Aggregate(entity, verrs))
		result.Aborted = true
		for _, r := range records {
			if ve, flagged := firstError[r.Index]; flagged {
				result.AddFailure(model.RecordFailure{Index: r.Index, Chunk: -1, Kind: model.FailureValidation, Message: ve.Message})
				continue
			}
			result.AddFailure(model.RecordFailure{
				Index: r.Index, Chunk: -1, Kind: model.FailureValidationAbort,
				Message: "batch withheld by validation policy",
			})
		}
		return result, nil
	}

	toSubmit := make([]*model.Record, 0, len(records))
	for _, r := range records {
		if ve, flagged := firstError[r.Index]; flagged {
			logger.Debugf("Stage %s: skipping %v", entity, ve)
			result.AddFailure(model.RecordFailure{Index: r.Index, Chunk: -1, Kind: model.FailureValidation, Message: ve.Message})
			continue
		}
		toSubmit = append(toSubmit, r)
	}
	return result, toSubmit
}

// runAssociationStage resolves edges from the imported records and creates them.
func (i *Importer) runAssociationStage(ctx context.Context, in Input) map[model.RelationKind]*model.ImportResult {
	ctx, end := i.tracer.StartStageSpan(ctx, string(StageAssociations))
	defer end()

	var opts []associate.LookupOption
	if i.cfg.SearchExistingContacts {
		if finder, ok := i.store.(port.ContactFinder); ok {
			opts = append(opts, associate.WithExternalContacts(i.searchExistingContacts(ctx, finder, in)))
		}
	}
	lookup := associate.NewLookup(in.Companies, in.Contacts, opts...)
	edges := i.resolver.Resolve(lookup, in.Contacts, in.Tickets)
	logger.Infof("Resolved %d association edges (%d companies, %d contacts indexed).",
		len(edges), lookup.CompanyCount(), lookup.ContactCount())

	results := i.client.CreateAssociations(ctx, edges)
	for _, kind := range model.RelationKinds {
		i.recorder.RecordStageEnd(ctx, string(kind), results[kind])
	}
	return results
}

// searchExistingContacts looks up ticket emails that match no contact imported in this run.
func (i *Importer) searchExistingContacts(ctx context.Context, finder port.ContactFinder, in Input) map[string]string {
	local := associate.NewLookup(nil, in.Contacts)
	found := make(map[string]string)
	for _, email := range i.resolver.TicketEmails(in.Tickets) {
		if _, ok := local.ContactByEmail(email); ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		id, ok, err := finder.FindContactByEmail(ctx, email)
		if err != nil {
			logger.Warnf("Contact search for %s failed: %v", email, err)
			continue
		}
		if ok {
			found[email] = id
		}
	}
	logger.Debugf("Found %d existing contacts for ticket emails.", len(found))
	return found
}

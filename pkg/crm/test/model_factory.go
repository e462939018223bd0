package test

import (
	"context"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// NewTestRecords creates records with consecutive indexes starting at 0.
func NewTestRecords(rows ...map[string]string) []*model.Record {
	records := make([]*model.Record, len(rows))
	for i, f := range rows {
		records[i] = model.NewRecord(i, f)
	}
	return records
}

// NewTestCompanies creates one company record per name.
func NewTestCompanies(names ...string) []*model.Record {
	rows := make([]map[string]string, len(names))
	for i, n := range names {
		rows[i] = map[string]string{model.FieldName: n}
	}
	return NewTestRecords(rows...)
}

// NewTestContact returns the fields of a contact linked to company.
func NewTestContact(email, company string) map[string]string {
	return map[string]string{
		"firstname":        "Test",
		model.FieldEmail:   email,
		model.FieldCompany: company,
	}
}

// NewTestTicket returns the fields of a ticket.
func NewTestTicket(subject, content string) map[string]string {
	return map[string]string{
		model.FieldSubject: subject,
		model.FieldContent: content,
	}
}

// NewTestRecordsN creates n records produced by gen.
func NewTestRecordsN(n int, gen func(i int) map[string]string) []*model.Record {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = gen(i)
	}
	return NewTestRecords(rows...)
}

// NewTestImportConfig returns the default import configuration with every wait set to zero.
func NewTestImportConfig() *config.ImportConfig {
	cfg := config.NewConfig().CRM.Import
	cfg.DelayBetweenBatches = 0
	cfg.Retry.InitialInterval = 0
	cfg.Retry.MaxInterval = 0
	cfg.Retry.RateLimitInterval = 0
	return &cfg
}

// RecordingSleeper records every requested wait without blocking.
type RecordingSleeper struct {
	Waits []time.Duration
	// OnSleep, when set, is called before the wait is recorded.
	OnSleep func(d time.Duration)
}

// Sleep implements retry.Sleeper.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if s.OnSleep != nil {
		s.OnSleep(d)
	}
	s.Waits = append(s.Waits, d)
	return ctx.Err()
}

// FixedClock returns a clock that advances by step on every call.
func FixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

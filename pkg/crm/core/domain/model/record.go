package model

import (
	"sort"
	"strings"
)

// Common field names the engine reads from records.
const (
	FieldName    = "name"
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldCompany = "company"
	FieldSubject = "subject"
	FieldContent = "content"
)

// Identifiers holds the emails and phone numbers extracted from a record's free text,
// in first-occurrence order.
type Identifiers struct {
	Emails []string
	Phones []string
}

// FirstEmail returns the authoritative (first) extracted email.
func (i Identifiers) FirstEmail() (string, bool) {
	if len(i.Emails) == 0 {
		return "", false
	}
	return i.Emails[0], true
}

// FirstPhone returns the first extracted phone number.
func (i Identifiers) FirstPhone() (string, bool) {
	if len(i.Phones) == 0 {
		return "", false
	}
	return i.Phones[0], true
}

// Empty reports whether nothing was extracted.
func (i Identifiers) Empty() bool {
	return len(i.Emails) == 0 && len(i.Phones) == 0
}

// Record is one entity instance: a field mapping plus its source row and,
// after successful creation, the identifier assigned by the CRM.
type Record struct {
	// Index is the provisional local index (source row, 0-based).
	Index int
	// Fields maps field name to raw value.
	Fields map[string]string
	// RemoteID is empty until the record has been created remotely.
	RemoteID string
	// Identifiers is filled by the extractor; nil means extraction did not run.
	Identifiers *Identifiers
}

// NewRecord creates a Record for the given source row.
func NewRecord(index int, fields map[string]string) *Record {
	if fields == nil {
		fields = map[string]string{}
	}
	return &Record{Index: index, Fields: fields}
}

// Get returns the trimmed value of field, or "" when absent.
func (r *Record) Get(field string) string {
	return strings.TrimSpace(r.Fields[field])
}

// Imported reports whether the record has a remote identifier.
func (r *Record) Imported() bool {
	return r.RemoteID != ""
}

// Columns returns the sorted set of field names used across records.
func Columns(records []*Record) []string {
	seen := map[string]struct{}{}
	for _, r := range records {
		for k := range r.Fields {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// EntityBatch is an ordered group of records of one entity type submitted in a single call.
type EntityBatch struct {
	EntityType EntityType
	// Number is the 0-based position of the batch within its stage.
	Number  int
	Records []*Record
}

// Partition splits records into batches of at most size records, preserving order.
// A size below 1 yields a single batch.
func Partition(entity EntityType, records []*Record, size int) []EntityBatch {
	if len(records) == 0 {
		return nil
	}
	if size < 1 {
		size = len(records)
	}
	batches := make([]EntityBatch, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, EntityBatch{
			EntityType: entity,
			Number:     len(batches),
			Records:    records[start:end],
		})
	}
	return batches
}

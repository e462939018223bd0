// Package associate derives association edges between imported records.
package associate

import (
	"strings"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// Lookup maps normalized company names and contact emails to imported records.
// It is built once per run and never mutated afterwards.
type Lookup struct {
	companies map[string]model.EntityRef
	contacts  map[string]model.EntityRef
}

// LookupOption customizes a Lookup while it is being built.
type LookupOption func(*Lookup)

// WithExternalContacts adds contacts that already exist in the CRM, keyed by email.
// Contacts imported in the current run take precedence.
func WithExternalContacts(emailToRemoteID map[string]string) LookupOption {
	return func(l *Lookup) {
		for email, id := range emailToRemoteID {
			key := normalize(email)
			if key == "" || id == "" {
				continue
			}
			if _, exists := l.contacts[key]; exists {
				continue
			}
			l.contacts[key] = model.EntityRef{Type: model.EntityContact, Index: -1, RemoteID: id}
		}
	}
}

// NewLookup indexes every company by name and every contact by email.
// Records without a remote ID are ignored; on collision the first record wins.
func NewLookup(companies, contacts []*model.Record, opts ...LookupOption) *Lookup {
	l := &Lookup{
		companies: index(model.EntityCompany, companies, model.FieldName),
		contacts:  index(model.EntityContact, contacts, model.FieldEmail),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func index(entity model.EntityType, records []*model.Record, field string) map[string]model.EntityRef {
	m := make(map[string]model.EntityRef, len(records))
	for _, r := range records {
		if !r.Imported() {
			continue
		}
		key := normalize(r.Fields[field])
		if key == "" {
			continue
		}
		if _, exists := m[key]; exists {
			continue
		}
		m[key] = model.RefOf(entity, r)
	}
	return m
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CompanyByName resolves a company name, ignoring case and surrounding whitespace.
func (l *Lookup) CompanyByName(name string) (model.EntityRef, bool) {
	ref, ok := l.companies[normalize(name)]
	return ref, ok
}

// ContactByEmail resolves a contact email, ignoring case.
func (l *Lookup) ContactByEmail(email string) (model.EntityRef, bool) {
	ref, ok := l.contacts[normalize(email)]
	return ref, ok
}

// CompanyCount returns the number of indexed companies.
func (l *Lookup) CompanyCount() int { return len(l.companies) }

// ContactCount returns the number of indexed contacts.
func (l *Lookup) ContactCount() int { return len(l.contacts) }

package associate

import (
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/engine/extract"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// Resolver turns imported records into association edges.
type Resolver struct {
	// TicketTextFields are scanned, in order, when a ticket carries no extracted identifiers.
	TicketTextFields []string
}

// NewResolver creates a Resolver scanning the given ticket fields.
func NewResolver(ticketTextFields []string) *Resolver {
	if len(ticketTextFields) == 0 {
		ticketTextFields = []string{model.FieldSubject, model.FieldContent}
	}
	return &Resolver{TicketTextFields: ticketTextFields}
}

// Resolve emits contact->company edges, then for each ticket a ticket->contact edge
// through its first email plus the transitive ticket->company edge.
// Unresolvable references produce no edge. Edges are unique by (source, target, kind).
func (r *Resolver) Resolve(lookup *Lookup, contacts, tickets []*model.Record) []model.AssociationEdge {
	var edges []model.AssociationEdge
	seen := make(map[string]struct{})
	emit := func(e model.AssociationEdge) {
		if _, dup := seen[e.Key()]; dup {
			return
		}
		seen[e.Key()] = struct{}{}
		edges = append(edges, e)
	}

	// Contact remote ID -> company it was linked to.
	contactCompany := make(map[string]model.EntityRef)
	for _, c := range contacts {
		if !c.Imported() {
			continue
		}
		name := c.Get(model.FieldCompany)
		if name == "" {
			continue
		}
		company, ok := lookup.CompanyByName(name)
		if !ok {
			logger.Debugf("contact %d: company %q not found", c.Index, name)
			continue
		}
		emit(model.AssociationEdge{
			Source: model.RefOf(model.EntityContact, c),
			Target: company,
			Kind:   model.RelationContactToCompany,
		})
		contactCompany[c.RemoteID] = company
	}

	for _, t := range tickets {
		if !t.Imported() {
			continue
		}
		email, ok := r.ticketEmail(t)
		if !ok {
			continue
		}
		contact, ok := lookup.ContactByEmail(email)
		if !ok {
			logger.Debugf("ticket %d: no contact for %s", t.Index, email)
			continue
		}
		source := model.RefOf(model.EntityTicket, t)
		emit(model.AssociationEdge{Source: source, Target: contact, Kind: model.RelationTicketToContact})
		if company, ok := contactCompany[contact.RemoteID]; ok {
			emit(model.AssociationEdge{Source: source, Target: company, Kind: model.RelationTicketToCompany})
		}
	}
	return edges
}

func (r *Resolver) ticketEmail(t *model.Record) (string, bool) {
	if t.Identifiers != nil {
		return t.Identifiers.FirstEmail()
	}
	ids := extract.ExtractRecord(t, r.TicketTextFields...)
	return ids.FirstEmail()
}

// TicketEmails returns the distinct first emails of imported tickets, in ticket order.
// It feeds the search for contacts that exist remotely but were not part of this run.
func (r *Resolver) TicketEmails(tickets []*model.Record) []string {
	var emails []string
	seen := make(map[string]struct{})
	for _, t := range tickets {
		if !t.Imported() {
			continue
		}
		email, ok := r.ticketEmail(t)
		if !ok {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	return emails
}

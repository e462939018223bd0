package model

import "fmt"

// RelationKind names a directed association between two entity types.
type RelationKind string

const (
	RelationContactToCompany RelationKind = "contact_to_company"
	RelationTicketToContact  RelationKind = "ticket_to_contact"
	RelationTicketToCompany  RelationKind = "ticket_to_company"
)

// RelationKinds lists every association kind in creation order.
var RelationKinds = []RelationKind{RelationContactToCompany, RelationTicketToContact, RelationTicketToCompany}

// Endpoints returns the source and target entity types of the relation.
func (k RelationKind) Endpoints() (EntityType, EntityType) {
	switch k {
	case RelationContactToCompany:
		return EntityContact, EntityCompany
	case RelationTicketToContact:
		return EntityTicket, EntityContact
	case RelationTicketToCompany:
		return EntityTicket, EntityCompany
	}
	return "", ""
}

// EntityRef points at one record of an entity type by local index and remote ID.
type EntityRef struct {
	Type     EntityType
	Index    int
	RemoteID string
}

// RefOf builds a reference to an imported record.
func RefOf(entity EntityType, r *Record) EntityRef {
	return EntityRef{Type: entity, Index: r.Index, RemoteID: r.RemoteID}
}

// String renders the reference as "contacts[3]".
func (r EntityRef) String() string {
	return fmt.Sprintf("%s[%d]", r.Type, r.Index)
}

// AssociationEdge is a directed relationship between two successfully created records.
type AssociationEdge struct {
	Source EntityRef
	Target EntityRef
	Kind   RelationKind
}

// key renders the reference with its remote ID, so that records found outside the
// run (Index -1) stay distinct.
func (r EntityRef) key() string {
	return fmt.Sprintf("%s[%d]#%s", r.Type, r.Index, r.RemoteID)
}

// Key identifies the edge for deduplication by (source, target, relation).
func (e AssociationEdge) Key() string {
	return fmt.Sprintf("%s->%s:%s", e.Source.key(), e.Target.key(), e.Kind)
}

// String renders the edge as "tickets[0]->contacts[3]:ticket_to_contact".
func (e AssociationEdge) String() string {
	return fmt.Sprintf("%s->%s:%s", e.Source, e.Target, e.Kind)
}

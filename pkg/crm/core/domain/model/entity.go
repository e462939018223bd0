// Package model defines the data carried through an import run: records, batches,
// validation errors, association edges, per-stage results and the final report.
package model

import (
	"fmt"
	"strings"
)

// EntityType identifies one of the three CRM object types handled by the importer.
// Values match the remote object type path segment.
type EntityType string

const (
	EntityCompany EntityType = "companies"
	EntityContact EntityType = "contacts"
	EntityTicket  EntityType = "tickets"
)

// ImportOrder is the fixed dependency order in which entity types are submitted.
var ImportOrder = []EntityType{EntityCompany, EntityContact, EntityTicket}

// Singular returns the human readable singular name ("company", "contact", "ticket").
func (e EntityType) Singular() string {
	switch e {
	case EntityCompany:
		return "company"
	case EntityContact:
		return "contact"
	case EntityTicket:
		return "ticket"
	default:
		return string(e)
	}
}

// String implements fmt.Stringer.
func (e EntityType) String() string {
	return string(e)
}

// Valid reports whether e is one of the supported entity types.
func (e EntityType) Valid() bool {
	switch e {
	case EntityCompany, EntityContact, EntityTicket:
		return true
	}
	return false
}

// ParseEntityType accepts plural or singular names, case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "companies", "company":
		return EntityCompany, nil
	case "contacts", "contact":
		return EntityContact, nil
	case "tickets", "ticket":
		return EntityTicket, nil
	}
	return "", fmt.Errorf("unsupported entity type: %q", s)
}

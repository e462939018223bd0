package orchestrator

import "github.com/tigerroll/crmimport/pkg/crm/core/domain/model"

// Stage is one step of an import run. Stages always run in the order of Stages.
type Stage string

const (
	StagePreflight    Stage = "preflight"
	StageCompanies    Stage = Stage(model.EntityCompany)
	StageContacts     Stage = Stage(model.EntityContact)
	StageTickets      Stage = Stage(model.EntityTicket)
	StageAssociations Stage = "associations"
	StageReport       Stage = "report"
)

// Stages is the fixed execution order.
var Stages = []Stage{StagePreflight, StageCompanies, StageContacts, StageTickets, StageAssociations, StageReport}

// Input carries the three record collections of a run.
type Input struct {
	Companies []*model.Record
	Contacts  []*model.Record
	Tickets   []*model.Record
}

// Records returns the collection for entity.
func (in Input) Records(entity model.EntityType) []*model.Record {
	switch entity {
	case model.EntityCompany:
		return in.Companies
	case model.EntityContact:
		return in.Contacts
	case model.EntityTicket:
		return in.Tickets
	}
	return nil
}

// Size returns the total number of records.
func (in Input) Size() int {
	return len(in.Companies) + len(in.Contacts) + len(in.Tickets)
}

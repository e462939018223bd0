package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// BatchCall records one BatchCreate invocation.
type BatchCall struct {
	Entity  model.EntityType
	Indexes []int
}

// AssociationCall records one CreateAssociation invocation.
type AssociationCall struct {
	SourceID string
	TargetID string
	Kind     model.RelationKind
}

// ScriptedStore is an in-memory port.ObjectStore whose failures are scripted per call.
// Remote IDs are "<singular>-<n>" with n counting up from 1 across all entity types.
type ScriptedStore struct {
	mu sync.Mutex

	// BatchErrors is consumed one entry per BatchCreate call; nil entries succeed.
	BatchErrors []error
	// RecordErrors maps entity type and record index to a per-record error.
	RecordErrors map[model.EntityType]map[int]error
	// DropIndexes omits the given record indexes from successful responses.
	DropIndexes map[model.EntityType]map[int]bool
	// AssociationErrors is consumed one entry per CreateAssociation call.
	AssociationErrors []error
	// VerifyErr is returned by VerifyCredentials.
	VerifyErr error

	BatchCalls       []BatchCall
	AssociationCalls []AssociationCall
	VerifyCalls      int

	nextID int
}

// NewScriptedStore creates a store that succeeds on every call.
func NewScriptedStore() *ScriptedStore {
	return &ScriptedStore{
		RecordErrors: map[model.EntityType]map[int]error{},
		DropIndexes:  map[model.EntityType]map[int]bool{},
	}
}

// FailRecord makes the record with the given index fail inside an otherwise successful response.
func (s *ScriptedStore) FailRecord(entity model.EntityType, index int, err error) *ScriptedStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErrors[entity] == nil {
		s.RecordErrors[entity] = map[int]error{}
	}
	s.RecordErrors[entity][index] = err
	return s
}

// BatchCreate implements port.ObjectStore.
func (s *ScriptedStore) BatchCreate(ctx context.Context, entity model.EntityType, records []*model.Record) ([]port.CreateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexes := make([]int, len(records))
	for i, r := range records {
		indexes[i] = r.Index
	}
	s.BatchCalls = append(s.BatchCalls, BatchCall{Entity: entity, Indexes: indexes})

	if len(s.BatchErrors) > 0 {
		err := s.BatchErrors[0]
		s.BatchErrors = s.BatchErrors[1:]
		if err != nil {
			return nil, err
		}
	}

	outcomes := make([]port.CreateOutcome, 0, len(records))
	for _, r := range records {
		if s.DropIndexes[entity][r.Index] {
			continue
		}
		if err, ok := s.RecordErrors[entity][r.Index]; ok {
			outcomes = append(outcomes, port.CreateOutcome{Index: r.Index, Err: err})
			continue
		}
		s.nextID++
		outcomes = append(outcomes, port.CreateOutcome{Index: r.Index, RemoteID: fmt.Sprintf("%s-%d", entity.Singular(), s.nextID)})
	}
	return outcomes, nil
}

// CreateAssociation implements port.ObjectStore.
func (s *ScriptedStore) CreateAssociation(ctx context.Context, sourceID, targetID string, kind model.RelationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AssociationCalls = append(s.AssociationCalls, AssociationCall{SourceID: sourceID, TargetID: targetID, Kind: kind})
	if len(s.AssociationErrors) > 0 {
		err := s.AssociationErrors[0]
		s.AssociationErrors = s.AssociationErrors[1:]
		return err
	}
	return nil
}

// VerifyCredentials implements port.CredentialsVerifier.
func (s *ScriptedStore) VerifyCredentials(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VerifyCalls++
	return s.VerifyErr
}

// CallsFor returns the BatchCreate calls made for entity.
func (s *ScriptedStore) CallsFor(entity model.EntityType) []BatchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var calls []BatchCall
	for _, c := range s.BatchCalls {
		if c.Entity == entity {
			calls = append(calls, c)
		}
	}
	return calls
}

var (
	_ port.ObjectStore         = (*ScriptedStore)(nil)
	_ port.CredentialsVerifier = (*ScriptedStore)(nil)
)

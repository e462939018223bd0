// Package simulated provides an in-memory object store used in demo mode.
package simulated

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// Object is a record stored by the simulated CRM.
type Object struct {
	ID         string
	Entity     model.EntityType
	Properties map[string]string
}

// Association is a link stored by the simulated CRM.
type Association struct {
	SourceID string
	TargetID string
	Kind     model.RelationKind
}

// Store keeps created objects and associations in memory. Each record is accepted
// with probability successRate; rejected records get a permanent per-record error.
// Submitting the same records twice creates duplicates.
type Store struct {
	mu           sync.Mutex
	successRate  float64
	rng          *rand.Rand
	objects      map[model.EntityType][]Object
	byID         map[string]Object
	associations []Association
}

// NewStore creates a Store from the simulation section.
// A zero seed produces a non-deterministic sequence.
func NewStore(cfg config.SimulationConfig) *Store {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	logger.Warnf("Running in DEMO mode: no data is sent to the CRM (success rate %.2f).", cfg.SuccessRate)
	return &Store{
		successRate: cfg.SuccessRate,
		rng:         rand.New(rand.NewSource(seed)),
		objects:     make(map[model.EntityType][]Object),
		byID:        make(map[string]Object),
	}
}

// BatchCreate implements port.ObjectStore.
func (s *Store) BatchCreate(ctx context.Context, entity model.EntityType, records []*model.Record) ([]port.CreateOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make([]port.CreateOutcome, 0, len(records))
	for _, r := range records {
		if s.rng.Float64() >= s.successRate {
			outcomes = append(outcomes, port.CreateOutcome{
				Index: r.Index,
				Err:   exception.NewPermanentError(400, "simulated rejection", nil),
			})
			continue
		}
		props := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			if v = strings.TrimSpace(v); v != "" {
				props[k] = v
			}
		}
		obj := Object{ID: uuid.NewString(), Entity: entity, Properties: props}
		s.objects[entity] = append(s.objects[entity], obj)
		s.byID[obj.ID] = obj
		outcomes = append(outcomes, port.CreateOutcome{Index: r.Index, RemoteID: obj.ID})
	}
	logger.Debugf("DEMO: created %d of %d %s.", countCreated(outcomes), len(records), entity)
	return outcomes, nil
}

func countCreated(outcomes []port.CreateOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// CreateAssociation implements port.ObjectStore. Both endpoints must exist.
func (s *Store) CreateAssociation(ctx context.Context, sourceID, targetID string, kind model.RelationKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := kind.Endpoints()
	src, ok := s.byID[sourceID]
	if !ok || src.Entity != from {
		return exception.NewPermanentError(404, "source object not found: "+sourceID, nil)
	}
	dst, ok := s.byID[targetID]
	if !ok || dst.Entity != to {
		return exception.NewPermanentError(404, "target object not found: "+targetID, nil)
	}
	s.associations = append(s.associations, Association{SourceID: sourceID, TargetID: targetID, Kind: kind})
	return nil
}

// VerifyCredentials always succeeds.
func (s *Store) VerifyCredentials(ctx context.Context) error {
	return ctx.Err()
}

// FindContactByEmail searches the contacts created so far.
func (s *Store) FindContactByEmail(ctx context.Context, email string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.objects[model.EntityContact] {
		if strings.EqualFold(o.Properties[model.FieldEmail], email) {
			return o.ID, true, nil
		}
	}
	return "", false, nil
}

// Objects returns a copy of the stored objects of entity.
func (s *Store) Objects(entity model.EntityType) []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Object(nil), s.objects[entity]...)
}

// Associations returns a copy of the stored associations.
func (s *Store) Associations() []Association {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Association(nil), s.associations...)
}

var (
	_ port.ObjectStore         = (*Store)(nil)
	_ port.CredentialsVerifier = (*Store)(nil)
	_ port.ContactFinder       = (*Store)(nil)
)

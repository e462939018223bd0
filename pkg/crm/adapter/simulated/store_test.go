package simulated_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/simulated"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/engine/orchestrator"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	testutil "github.com/tigerroll/crmimport/pkg/crm/test"
)

func TestStoreCreatesAndLinks(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 7})
	ctx := context.Background()

	companies, err := store.BatchCreate(ctx, model.EntityCompany, testutil.NewTestCompanies("Acme"))
	require.NoError(t, err)
	contacts, err := store.BatchCreate(ctx, model.EntityContact, testutil.NewTestRecords(testutil.NewTestContact("a@acme.com", "Acme")))
	require.NoError(t, err)

	require.NoError(t, store.CreateAssociation(ctx, contacts[0].RemoteID, companies[0].RemoteID, model.RelationContactToCompany))
	assert.Len(t, store.Associations(), 1)

	err = store.CreateAssociation(ctx, companies[0].RemoteID, contacts[0].RemoteID, model.RelationContactToCompany)
	assert.True(t, exception.IsPermanent(err))

	id, ok, err := store.FindContactByEmail(ctx, "A@ACME.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, contacts[0].RemoteID, id)
	assert.Equal(t, "Acme", store.Objects(model.EntityContact)[0].Properties["company"])
}

func TestStoreSuccessRate(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 0, Seed: 1})
	outcomes, err := store.BatchCreate(context.Background(), model.EntityCompany, testutil.NewTestCompanies("A", "B", "C"))
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.True(t, exception.IsPermanent(o.Err))
	}
	assert.Empty(t, store.Objects(model.EntityCompany))
}

func TestStoreSeedIsDeterministic(t *testing.T) {
	run := func() []bool {
		store := simulated.NewStore(config.SimulationConfig{SuccessRate: 0.5, Seed: 42})
		outcomes, err := store.BatchCreate(context.Background(), model.EntityCompany,
			testutil.NewTestRecordsN(20, func(i int) map[string]string { return map[string]string{"name": "c"} }))
		require.NoError(t, err)
		ok := make([]bool, len(outcomes))
		for i, o := range outcomes {
			ok[i] = o.Err == nil
		}
		return ok
	}
	assert.Equal(t, run(), run())
}

// A second run over the same input creates a second copy of every object.
func TestImportingTwiceDuplicatesObjects(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 3})
	input := func() orchestrator.Input {
		return orchestrator.Input{
			Companies: testutil.NewTestCompanies("Acme", "Globex"),
			Contacts:  testutil.NewTestRecords(testutil.NewTestContact("a@acme.com", "Acme")),
			Tickets:   testutil.NewTestRecords(testutil.NewTestTicket("Help", "from a@acme.com")),
		}
	}
	importer := orchestrator.NewImporter(store, testutil.NewTestImportConfig(),
		orchestrator.WithSleeper((&testutil.RecordingSleeper{}).Sleep))

	_, err := importer.Run(context.Background(), input())
	require.NoError(t, err)
	_, err = importer.Run(context.Background(), input())
	require.NoError(t, err)

	assert.Len(t, store.Objects(model.EntityCompany), 4)
	assert.Len(t, store.Objects(model.EntityContact), 2)
	assert.Len(t, store.Objects(model.EntityTicket), 2)
	// Each run links its own contact and ticket: 3 edges per run.
	assert.Len(t, store.Associations(), 6)
}

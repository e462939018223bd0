package batch_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/engine/step/batch"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	testutil "github.com/tigerroll/crmimport/pkg/crm/test"
)

func contacts(n int) []*model.Record {
	return testutil.NewTestRecordsN(n, func(i int) map[string]string {
		return map[string]string{"email": fmt.Sprintf("user%d@acme.com", i)}
	})
}

func TestSubmitChunksAtBatchSize(t *testing.T) {
	store := testutil.NewScriptedStore()
	sleeper := &testutil.RecordingSleeper{}
	cfg := testutil.NewTestImportConfig()
	cfg.DelayBetweenBatches = 100
	client := batch.NewClient(store, cfg, batch.WithSleeper(sleeper.Sleep))

	records := contacts(250)
	result := client.Submit(context.Background(), model.EntityContact, records)

	require.Len(t, store.BatchCalls, 3)
	assert.Len(t, store.BatchCalls[0].Indexes, 100)
	assert.Len(t, store.BatchCalls[1].Indexes, 100)
	assert.Len(t, store.BatchCalls[2].Indexes, 50)
	assert.Equal(t, 200, store.BatchCalls[2].Indexes[0])

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, sleeper.Waits)
	assert.Equal(t, 250, result.Attempted)
	assert.Equal(t, 250, result.Succeeded)
	assert.Equal(t, 100.0, result.SuccessRate())
	for _, r := range records {
		assert.True(t, r.Imported())
	}
}

func TestSubmitClampsOversizedBatch(t *testing.T) {
	cfg := testutil.NewTestImportConfig()
	cfg.BatchSize = 500
	assert.Equal(t, batch.MaxChunkSize, batch.NewClient(testutil.NewScriptedStore(), cfg).BatchSize())
}

func TestSubmitResendsAfterRetryAfterHint(t *testing.T) {
	store := testutil.NewScriptedStore()
	store.BatchErrors = []error{exception.NewRateLimitedError(2*time.Second, "too many requests")}
	sleeper := &testutil.RecordingSleeper{}
	client := batch.NewClient(store, testutil.NewTestImportConfig(), batch.WithSleeper(sleeper.Sleep))

	result := client.Submit(context.Background(), model.EntityCompany, testutil.NewTestCompanies("Acme", "Globex"))

	require.Len(t, store.BatchCalls, 2)
	assert.Equal(t, store.BatchCalls[0].Indexes, store.BatchCalls[1].Indexes)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Waits)
	assert.Equal(t, 2, result.Succeeded)
	assert.Empty(t, result.Failures)
}

func TestSubmitExhaustedChunkDoesNotBlockNext(t *testing.T) {
	store := testutil.NewScriptedStore()
	transient := exception.NewTransientError(503, "service unavailable", nil)
	store.BatchErrors = []error{transient, transient, transient}
	sleeper := &testutil.RecordingSleeper{}
	cfg := testutil.NewTestImportConfig()
	cfg.BatchSize = 2
	cfg.Retry.InitialInterval = 2000
	cfg.Retry.MaxInterval = 30000
	client := batch.NewClient(store, cfg, batch.WithSleeper(sleeper.Sleep))

	result := client.Submit(context.Background(), model.EntityContact, contacts(4))

	// Three sends of chunk 0, then one send of chunk 1.
	require.Len(t, store.BatchCalls, 4)
	assert.Equal(t, []int{2, 3}, store.BatchCalls[3].Indexes)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 0}, sleeper.Waits)

	assert.Equal(t, 4, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	for _, f := range result.Failures {
		assert.Equal(t, model.FailureTransient, f.Kind)
		assert.Equal(t, 0, f.Chunk)
		assert.Equal(t, 503, f.StatusCode)
	}
	assert.Equal(t, map[model.FailureKind]int{model.FailureTransient: 2}, result.FailuresByKind())
}

func TestSubmitRateLimitedUntilExhausted(t *testing.T) {
	store := testutil.NewScriptedStore()
	limited := exception.NewRateLimitedError(0, "429")
	store.BatchErrors = []error{limited, limited, limited}
	client := batch.NewClient(store, testutil.NewTestImportConfig(), batch.WithSleeper((&testutil.RecordingSleeper{}).Sleep))

	result := client.Submit(context.Background(), model.EntityTicket, testutil.NewTestRecords(map[string]string{"subject": "x"}))

	assert.Len(t, store.BatchCalls, 3)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, model.FailureRateLimited, result.Failures[0].Kind)
	assert.Equal(t, 429, result.Failures[0].StatusCode)
}

func TestSubmitRetriesRateLimitRegardlessOfRetryableList(t *testing.T) {
	store := testutil.NewScriptedStore()
	store.BatchErrors = []error{exception.NewRateLimitedError(0, "429")}
	cfg := testutil.NewTestImportConfig()
	cfg.Retry.RetryableExceptions = []string{exception.TransientRemoteException}
	client := batch.NewClient(store, cfg, batch.WithSleeper((&testutil.RecordingSleeper{}).Sleep))

	result := client.Submit(context.Background(), model.EntityCompany, testutil.NewTestCompanies("Acme"))

	assert.Len(t, store.BatchCalls, 2)
	assert.Equal(t, 1, result.Succeeded)
	assert.Empty(t, result.Failures)
}

func TestSubmitRetriesRawNetworkErrors(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	t.Run("recovers", func(t *testing.T) {
		store := testutil.NewScriptedStore()
		store.BatchErrors = []error{refused}
		cfg := testutil.NewTestImportConfig()
		cfg.Retry.RetryableExceptions = nil
		client := batch.NewClient(store, cfg, batch.WithSleeper((&testutil.RecordingSleeper{}).Sleep))

		result := client.Submit(context.Background(), model.EntityCompany, testutil.NewTestCompanies("Acme"))

		assert.Len(t, store.BatchCalls, 2)
		assert.Equal(t, 1, result.Succeeded)
	})

	t.Run("exhausted", func(t *testing.T) {
		store := testutil.NewScriptedStore()
		store.BatchErrors = []error{refused, refused, refused}
		client := batch.NewClient(store, testutil.NewTestImportConfig(), batch.WithSleeper((&testutil.RecordingSleeper{}).Sleep))

		result := client.Submit(context.Background(), model.EntityCompany, testutil.NewTestCompanies("Acme"))

		assert.Len(t, store.BatchCalls, 3)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, model.FailureTransient, result.Failures[0].Kind)
		assert.Equal(t, 0, result.Failures[0].StatusCode)
	})
}

func TestSubmitPermanentErrorFailsImmediately(t *testing.T) {
	store := testutil.NewScriptedStore()
	store.BatchErrors = []error{exception.NewPermanentError(400, "Property values were not valid", nil)}
	sleeper := &testutil.RecordingSleeper{}
	client := batch.NewClient(store, testutil.NewTestImportConfig(), batch.WithSleeper(sleeper.Sleep))

	result := client.Submit(context.Background(), model.EntityCompany, testutil.NewTestCompanies("Acme", "Globex"))

	assert.Len(t, store.BatchCalls, 1)
	assert.Empty(t, sleeper.Waits)
	assert.Equal(t, 0, result.Succeeded)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, model.RecordFailure{
		Index: 0, Chunk: 0, Kind: model.FailurePermanent, StatusCode: 400, Message: "Property values were not valid",
	}, result.Failures[0])
}

func TestSubmitPerRecordErrorsAndMissingResults(t *testing.T) {
	store := testutil.NewScriptedStore().
		FailRecord(model.EntityContact, 1, exception.NewPermanentError(400, "email already exists", nil))
	store.DropIndexes[model.EntityContact] = map[int]bool{2: true}
	client := batch.NewClient(store, testutil.NewTestImportConfig())

	records := contacts(3)
	result := client.Submit(context.Background(), model.EntityContact, records)

	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 1, result.Succeeded)
	assert.True(t, records[0].Imported())
	assert.False(t, records[1].Imported())
	assert.False(t, records[2].Imported())
	assert.Equal(t, map[model.FailureKind]int{
		model.FailurePermanent:     1,
		model.FailureMissingResult: 1,
	}, result.FailuresByKind())
	assert.Equal(t, []model.CreatedRecord{{Index: 0, RemoteID: records[0].RemoteID}}, result.Created)
}

func TestSubmitCancelledBetweenChunks(t *testing.T) {
	store := testutil.NewScriptedStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := &testutil.RecordingSleeper{OnSleep: func(time.Duration) { cancel() }}
	cfg := testutil.NewTestImportConfig()
	cfg.BatchSize = 2
	client := batch.NewClient(store, cfg, batch.WithSleeper(sleeper.Sleep))

	result := client.Submit(ctx, model.EntityContact, contacts(5))

	assert.Len(t, store.BatchCalls, 1)
	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, map[model.FailureKind]int{model.FailureCancelled: 3}, result.FailuresByKind())
	assert.Equal(t, 1, result.Failures[0].Chunk)
	assert.Equal(t, 2, result.Failures[2].Chunk)
}

func TestSubmitMeasuresDurationWithInjectedClock(t *testing.T) {
	client := batch.NewClient(testutil.NewScriptedStore(), testutil.NewTestImportConfig(),
		batch.WithClock(testutil.FixedClock(time.Unix(0, 0), time.Second)))

	result := client.Submit(context.Background(), model.EntityCompany, nil)
	assert.Equal(t, 0, result.Attempted)
	assert.Equal(t, time.Second, result.Duration)
}

func TestCreateAssociations(t *testing.T) {
	store := testutil.NewScriptedStore()
	store.AssociationErrors = []error{nil, exception.NewPermanentError(404, "object not found", nil)}
	client := batch.NewClient(store, testutil.NewTestImportConfig())

	ref := func(e model.EntityType, i int, id string) model.EntityRef {
		return model.EntityRef{Type: e, Index: i, RemoteID: id}
	}
	edges := []model.AssociationEdge{
		{Source: ref(model.EntityTicket, 0, "t-1"), Target: ref(model.EntityContact, 0, "p-1"), Kind: model.RelationTicketToContact},
		{Source: ref(model.EntityContact, 0, "p-1"), Target: ref(model.EntityCompany, 0, "c-1"), Kind: model.RelationContactToCompany},
		{Source: ref(model.EntityContact, 1, "p-2"), Target: ref(model.EntityCompany, 0, "c-1"), Kind: model.RelationContactToCompany},
	}

	results := client.CreateAssociations(context.Background(), edges)

	require.Len(t, results, len(model.RelationKinds))
	// Edges are created grouped by kind, contact->company first.
	require.Len(t, store.AssociationCalls, 3)
	assert.Equal(t, testutil.AssociationCall{SourceID: "p-1", TargetID: "c-1", Kind: model.RelationContactToCompany}, store.AssociationCalls[0])
	assert.Equal(t, model.RelationTicketToContact, store.AssociationCalls[2].Kind)

	c2c := results[model.RelationContactToCompany]
	assert.Equal(t, 2, c2c.Attempted)
	assert.Equal(t, 1, c2c.Succeeded)
	require.Len(t, c2c.Failures, 1)
	assert.Equal(t, 1, c2c.Failures[0].Index)
	assert.Equal(t, model.FailurePermanent, c2c.Failures[0].Kind)
	assert.Equal(t, 404, c2c.Failures[0].StatusCode)
	assert.Equal(t, []model.CreatedRecord{{Index: 0, RemoteID: "p-1", TargetRemoteID: "c-1"}}, c2c.Created)

	assert.Equal(t, 1, results[model.RelationTicketToContact].Succeeded)
	assert.Equal(t, 0, results[model.RelationTicketToCompany].Attempted)
}

func TestCreateAssociationsRetriesTransientErrors(t *testing.T) {
	store := testutil.NewScriptedStore()
	store.AssociationErrors = []error{exception.NewTransientError(500, "internal", nil)}
	sleeper := &testutil.RecordingSleeper{}
	client := batch.NewClient(store, testutil.NewTestImportConfig(), batch.WithSleeper(sleeper.Sleep))

	edge := model.AssociationEdge{
		Source: model.EntityRef{Type: model.EntityTicket, RemoteID: "t-1"},
		Target: model.EntityRef{Type: model.EntityCompany, RemoteID: "c-1"},
		Kind:   model.RelationTicketToCompany,
	}
	results := client.CreateAssociations(context.Background(), []model.AssociationEdge{edge})

	assert.Len(t, store.AssociationCalls, 2)
	assert.Equal(t, 1, results[model.RelationTicketToCompany].Succeeded)
	assert.Len(t, sleeper.Waits, 1)
}

func TestChunkStateString(t *testing.T) {
	assert.Equal(t, "rate_limited", batch.ChunkRateLimited.String())
	assert.True(t, batch.ChunkFailed.Terminal())
	assert.False(t, batch.ChunkSent.Terminal())
}

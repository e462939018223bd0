package hubspot_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/hubspot"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *hubspot.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.NewConfig().CRM.HubSpot
	cfg.BaseURL = srv.URL + "/"
	cfg.APIKey = "pat-test"
	cfg.RequestsPerSecond = 0
	return hubspot.NewClient(&cfg)
}

func decode(t *testing.T, r *http.Request, v interface{}) {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v))
}

func TestBatchCreateSendsMappedPropertiesAndMatchesResults(t *testing.T) {
	var got map[string][]map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/contacts/batch/create", r.URL.Path)
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))
		decode(t, r, &got)
		w.WriteHeader(http.StatusCreated)
		// Results are returned out of order; the trace IDs put them back.
		_, _ = io.WriteString(w, `{"status":"COMPLETE","results":[
			{"id":"502","objectWriteTraceId":"8"},
			{"id":"501","objectWriteTraceId":"7"}]}`)
	})

	records := []*model.Record{
		model.NewRecord(7, map[string]string{"email": "a@acme.com", "unmapped_column": "x", "phone": " "}),
		model.NewRecord(8, map[string]string{"email": "b@acme.com", "firstname": "Bob"}),
	}
	outcomes, err := client.BatchCreate(context.Background(), model.EntityContact, records)

	require.NoError(t, err)
	require.Len(t, got["inputs"], 2)
	assert.Equal(t, map[string]interface{}{"email": "a@acme.com"}, got["inputs"][0]["properties"])
	assert.Equal(t, "7", got["inputs"][0]["objectWriteTraceId"])

	byIndex := map[int]string{}
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		byIndex[o.Index] = o.RemoteID
	}
	assert.Equal(t, map[int]string{7: "501", 8: "502"}, byIndex)
}

func TestBatchCreateMultiStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, `{"status":"COMPLETE",
			"results":[{"id":"900"}],
			"errors":[{"status":"error","category":"VALIDATION_ERROR","message":"Property values were not valid",
			           "context":{"objectWriteTraceId":["1"]}}],
			"numErrors":1}`)
	})

	records := []*model.Record{
		model.NewRecord(0, map[string]string{"name": "Acme"}),
		model.NewRecord(1, map[string]string{"name": "Globex"}),
	}
	outcomes, err := client.BatchCreate(context.Background(), model.EntityCompany, records)

	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, outcomes[0].Index)
	assert.True(t, exception.IsPermanent(outcomes[0].Err))
	assert.Equal(t, "Property values were not valid", exception.ExtractErrorMessage(outcomes[0].Err))
	// The untraced result goes to the remaining record.
	assert.Equal(t, 0, outcomes[1].Index)
	assert.Equal(t, "900", outcomes[1].RemoteID)
}

func TestBatchCreateClassifiesStatus(t *testing.T) {
	cases := []struct {
		status     int
		retryAfter string
		check      func(error) bool
	}{
		{http.StatusTooManyRequests, "3", exception.IsRateLimited},
		{http.StatusUnauthorized, "", exception.IsConfiguration},
		{http.StatusBadRequest, "", exception.IsPermanent},
		{http.StatusBadGateway, "", exception.IsRetryable},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if tc.retryAfter != "" {
				w.Header().Set("Retry-After", tc.retryAfter)
			}
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"status":"error","message":"nope","category":"X"}`)
		})
		_, err := client.BatchCreate(context.Background(), model.EntityTicket,
			[]*model.Record{model.NewRecord(0, map[string]string{"subject": "s"})})
		require.Error(t, err, tc.status)
		assert.True(t, tc.check(err), tc.status)
		assert.Equal(t, "nope", exception.ExtractErrorMessage(err))
		if tc.retryAfter != "" {
			hint, ok := exception.RetryAfterHint(err)
			assert.True(t, ok)
			assert.Equal(t, 3*time.Second, hint)
		}
	}
}

func TestErrorMessageFromRawBodyKeepsValidUTF8(t *testing.T) {
	// The 200-byte cut falls inside a multi-byte rune.
	body := "x" + strings.Repeat("ü€", 100)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, body)
	})

	_, err := client.BatchCreate(context.Background(), model.EntityCompany,
		[]*model.Record{model.NewRecord(0, map[string]string{"name": "Acme"})})
	require.Error(t, err)

	msg := exception.ExtractErrorMessage(err)
	assert.True(t, utf8.ValidString(msg), msg)
	assert.LessOrEqual(t, len(msg), 200)
	assert.True(t, strings.HasPrefix(body, msg))
	assert.Greater(t, len(msg), 195)
}

func TestBatchCreateNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := config.NewConfig().CRM.HubSpot
	cfg.BaseURL = srv.URL
	client := hubspot.NewClient(&cfg)

	_, err := client.BatchCreate(context.Background(), model.EntityCompany, []*model.Record{model.NewRecord(0, nil)})
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrTransientRemote)
	assert.True(t, exception.IsRetryable(err))
}

func TestCreateAssociation(t *testing.T) {
	var body []map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/crm/v4/objects/tickets/t-1/associations/contacts/p-2", r.URL.Path)
		decode(t, r, &body)
		_, _ = io.WriteString(w, `{"fromObjectTypeId":"0-5","fromObjectId":1,"toObjectTypeId":"0-1","toObjectId":2}`)
	})

	err := client.CreateAssociation(context.Background(), "t-1", "p-2", model.RelationTicketToContact)

	require.NoError(t, err)
	require.Len(t, body, 1)
	assert.Equal(t, "HUBSPOT_DEFINED", body[0]["associationCategory"])
	assert.Equal(t, float64(16), body[0]["associationTypeId"])
}

func TestCreateAssociationUnknownKind(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	err := client.CreateAssociation(context.Background(), "a", "b", model.RelationKind("deal_to_company"))
	assert.True(t, exception.IsPermanent(err))
}

func TestVerifyCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/contacts", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"results":[]}`)
	})
	assert.NoError(t, client.VerifyCredentials(context.Background()))

	denied := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	err := denied.VerifyCredentials(context.Background())
	assert.True(t, exception.IsConfiguration(err))
}

func TestFindContactByEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/contacts/search", r.URL.Path)
		var req struct {
			FilterGroups []struct {
				Filters []struct {
					PropertyName string `json:"propertyName"`
					Operator     string `json:"operator"`
					Value        string `json:"value"`
				} `json:"filters"`
			} `json:"filterGroups"`
		}
		decode(t, r, &req)
		value := req.FilterGroups[0].Filters[0].Value
		if value == "known@acme.com" {
			_, _ = io.WriteString(w, `{"total":1,"results":[{"id":"42","properties":{"email":"known@acme.com"}}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"total":0,"results":[]}`)
	})

	id, ok, err := client.FindContactByEmail(context.Background(), "known@acme.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", id)

	_, ok, err = client.FindContactByEmail(context.Background(), "unknown@acme.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelledContextIsNotRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.BatchCreate(ctx, model.EntityCompany, []*model.Record{model.NewRecord(0, nil)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, exception.IsRetryable(err))
}

package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/engine/extract"
)

func TestExtractEmailAndPhone(t *testing.T) {
	ids := extract.Extract("Contact: john@test.com - Tel: +12345")

	assert.Equal(t, []string{"john@test.com"}, ids.Emails)
	assert.Contains(t, ids.Phones, "+12345")
}

func TestExtractNoMatches(t *testing.T) {
	for _, text := range []string{"", "   ", "printer on floor 3 is jammed", "call me maybe @ noon"} {
		ids := extract.Extract(text)
		assert.Empty(t, ids.Emails, text)
		assert.Empty(t, ids.Phones, text)
		assert.True(t, ids.Empty(), text)
		_, ok := ids.FirstEmail()
		assert.False(t, ok, text)
	}
}

func TestExtractKeepsFirstOccurrenceOrder(t *testing.T) {
	ids := extract.Extract("cc: Bob@Acme.com, alice@acme.com; again bob@acme.com and +44 20 7946 0958 or 0033 1 23 45 67 89")

	require.Len(t, ids.Emails, 2)
	first, ok := ids.FirstEmail()
	require.True(t, ok)
	assert.Equal(t, "bob@acme.com", first)
	assert.Equal(t, "alice@acme.com", ids.Emails[1])

	require.NotEmpty(t, ids.Phones)
	assert.Equal(t, "+44 20 7946", ids.Phones[0])
}

func TestExtractRecordScansFieldsInOrder(t *testing.T) {
	ticket := model.NewRecord(0, map[string]string{
		"subject": "Issue reported by ops@globex.com",
		"content": "Forwarded from ceo@globex.com",
	})

	ids := extract.ExtractRecord(ticket, "subject", "content")
	assert.Equal(t, []string{"ops@globex.com", "ceo@globex.com"}, ids.Emails)

	ids = extract.ExtractRecord(ticket, "content", "subject")
	first, _ := ids.FirstEmail()
	assert.Equal(t, "ceo@globex.com", first)
}

func TestEnrichStoresIdentifiers(t *testing.T) {
	records := []*model.Record{
		model.NewRecord(0, map[string]string{"subject": "Login broken", "content": "user a@acme.com"}),
		model.NewRecord(1, map[string]string{"subject": "No email here"}),
	}

	withEmail := extract.Enrich(records, "subject", "content")

	assert.Equal(t, 1, withEmail)
	require.NotNil(t, records[0].Identifiers)
	require.NotNil(t, records[1].Identifiers)
	assert.Equal(t, []string{"a@acme.com"}, records[0].Identifiers.Emails)
	assert.True(t, records[1].Identifiers.Empty())
}

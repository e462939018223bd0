package reader_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/crmimport/pkg/crm/component/reader"
)

func TestReadRecords(t *testing.T) {
	input := "\xEF\xBB\xBF email , company,phone\n" +
		" a@acme.com ,Acme,\n" +
		"b@globex.com,\"Globex, Inc\"\n"

	records, err := reader.ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, map[string]string{"email": "a@acme.com", "company": "Acme", "phone": ""}, records[0].Fields)
	assert.Equal(t, 1, records[1].Index)
	assert.Equal(t, "Globex, Inc", records[1].Fields["company"])
	assert.Equal(t, "", records[1].Fields["phone"])
}

func TestReadRecordsHeaderOnly(t *testing.T) {
	records, err := reader.ReadRecords(strings.NewReader("name,domain\n"))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = reader.ReadRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadRecords(t *testing.T) {
	records, err := reader.LoadRecords("")
	require.NoError(t, err)
	assert.Nil(t, records)

	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte("name\nAcme\nGlobex\n"), 0o644))
	records, err = reader.LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Globex", records[1].Get("name"))

	_, err = reader.LoadRecords(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to open")
}

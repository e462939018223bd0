package gorm_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/crmimport/pkg/crm/adapter/database/config"
	gormadapter "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/mysql"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm/sqlite"
)

func TestProviderOpensAndCachesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	provider := gormadapter.NewProvider(map[string]interface{}{
		"journal": map[string]interface{}{
			"type":     "sqlite",
			"database": path,
			"pool":     map[string]interface{}{"max_open_conns": "1"},
		},
	})
	t.Cleanup(func() { _ = provider.CloseAll() })

	conn, err := provider.GetConnection("journal")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, 1, conn.Config().Pool.MaxOpenConns)
	require.NoError(t, conn.SQLDB().Ping())

	again, err := provider.GetConnection("journal")
	require.NoError(t, err)
	assert.Same(t, conn, again)
}

func TestProviderErrors(t *testing.T) {
	provider := gormadapter.NewProvider(map[string]interface{}{
		"oracle": map[string]interface{}{"type": "oracle"},
		"empty":  map[string]interface{}{"type": "sqlite"},
	})

	_, err := provider.GetConnection("missing")
	assert.ErrorContains(t, err, "not found")
	_, err = provider.GetConnection("oracle")
	assert.ErrorContains(t, err, "no dialector registered")
	_, err = provider.GetConnection("empty")
	assert.ErrorContains(t, err, "path cannot be empty")
}

func TestConnectionStrings(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{Host: "db", Port: 5432, User: "crm", Password: "secret", Database: "crm"}
	assert.Equal(t, "host=db port=5432 user=crm password=secret dbname=crm sslmode=disable", postgres.ConnectionString(cfg))

	cfg.Schema = "import"
	cfg.Sslmode = "require"
	assert.Equal(t, "host=db port=5432 user=crm password=secret dbname=crm sslmode=require search_path=import", postgres.ConnectionString(cfg))

	cfg.Port = 3306
	dsn := mysql.ConnectionString(cfg)
	assert.Contains(t, dsn, "crm:secret@tcp(db:3306)/crm?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

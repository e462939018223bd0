// Package sqlite registers the SQLite dialector with the gorm adapter.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/crmimport/pkg/crm/adapter/database/config"
	gormadapter "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the file DSN with foreign keys enabled.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database + "?_foreign_keys=on"
}

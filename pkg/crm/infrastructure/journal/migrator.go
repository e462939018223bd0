package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// MigrationsTable records the applied journal schema version.
const MigrationsTable = "crmimport_schema_migrations"

//go:embed migrations
var migrationFS embed.FS

// MigrationsFS returns the embedded migrations of one dialect.
func MigrationsFS(dbType string) (fs.FS, error) {
	sub, err := fs.Sub(migrationFS, "migrations/"+dbType)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "."); err != nil {
		return nil, fmt.Errorf("no journal migrations for database type: %s", dbType)
	}
	return sub, nil
}

func databaseDriver(sqlDB *sql.DB, dbType string) (database.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

// Migrate applies every pending journal migration. An up-to-date schema is not an error.
// The migrate instance is not closed because that would close sqlDB.
func Migrate(sqlDB *sql.DB, dbType string) error {
	source, err := MigrationsFS(dbType)
	if err != nil {
		return err
	}
	sourceDriver, err := iofs.New(source, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	defer sourceDriver.Close()
	dbDriver, err := databaseDriver(sqlDB, dbType)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("journal migration failed (DB: %s): %w", dbType, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read journal schema version: %w", err)
	}
	logger.Infof("Journal schema at version %d (dirty: %v).", version, dirty)
	return nil
}

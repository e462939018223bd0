package journal

import (
	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/crmimport/pkg/crm/adapter/database/gorm"
	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// JournalParams defines the dependencies for the journal.
type JournalParams struct {
	fx.In
	Config    *config.Config
	Databases *gormadapter.Provider
}

// NewJournalProvider returns the gorm journal when enabled, and port.NoopJournal otherwise.
// The connection is owned by the database Provider.
func NewJournalProvider(p JournalParams) (port.Journal, error) {
	cfg := p.Config.CRM.Journal
	if !cfg.Enabled {
		logger.Debugf("Journal disabled.")
		return port.NoopJournal{}, nil
	}
	conn, err := p.Databases.GetConnection(cfg.DatabaseRef)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleJournal, "failed to open journal database", err)
	}
	if cfg.Migrate {
		if err := Migrate(conn.SQLDB(), conn.Type()); err != nil {
			return nil, exception.NewConfigurationError(moduleJournal, "failed to migrate journal schema", err)
		}
	}
	logger.Infof("Journal enabled on database '%s' (%s).", conn.Name(), conn.Type())
	return NewGormJournal(conn.DB(), nil), nil
}

// Module provides the port.Journal.
var Module = fx.Options(
	fx.Provide(NewJournalProvider),
)

package writer

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/storage"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
)

// ExporterParams holds the dependencies of NewExporterProvider.
type ExporterParams struct {
	fx.In
	Config   *config.Config
	Storages *storage.Provider
}

// NewExporterProvider returns nil when crm.export is disabled.
func NewExporterProvider(p ExporterParams) (*ParquetExporter, error) {
	cfg := p.Config.CRM.Export
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := p.Storages.GetConnection(context.Background(), cfg.StorageRef)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleWriter,
			fmt.Sprintf("export storage '%s' is not usable", cfg.StorageRef), err)
	}
	return NewParquetExporter(conn, cfg)
}

// Module provides the optional *ParquetExporter.
var Module = fx.Options(
	fx.Provide(NewExporterProvider),
)

package orchestrator

import (
	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/metrics"
)

// ImporterParams defines the dependencies for the Importer.
type ImporterParams struct {
	fx.In
	Store          port.ObjectStore
	Config         *config.ImportConfig
	Journal        port.Journal
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewImporterProvider builds the Importer from the application's components.
func NewImporterProvider(p ImporterParams) *Importer {
	return NewImporter(p.Store, p.Config,
		WithJournal(p.Journal),
		WithRecorder(p.MetricRecorder),
		WithTracer(p.Tracer),
	)
}

// Module provides the Importer.
var Module = fx.Options(
	fx.Provide(NewImporterProvider),
)

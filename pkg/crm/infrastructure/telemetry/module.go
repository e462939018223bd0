package telemetry

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
)

// NewProviderFromConfig creates the Provider and flushes it on stop.
func NewProviderFromConfig(lc fx.Lifecycle, cfg *config.Config) (*Provider, error) {
	p, err := NewProvider(context.Background(), cfg.CRM.Telemetry)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: p.Shutdown})
	return p, nil
}

// Module provides the telemetry Provider.
var Module = fx.Options(
	fx.Provide(NewProviderFromConfig),
)

package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
)

// NewProviderFromConfig creates the Provider for crm.database and closes its connections on stop.
func NewProviderFromConfig(lc fx.Lifecycle, cfg *config.Config) *Provider {
	p := NewProvider(cfg.CRM.Databases)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.CloseAll()
		},
	})
	return p
}

// Module provides the database Provider. Dialectors are registered by importing
// the sqlite, postgres and mysql subpackages.
var Module = fx.Options(
	fx.Provide(NewProviderFromConfig),
)

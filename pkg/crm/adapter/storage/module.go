package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
)

// NewProviderFromConfig creates the Provider for crm.storage and closes its connections on stop.
func NewProviderFromConfig(lc fx.Lifecycle, cfg *config.Config) *Provider {
	p := NewProvider(cfg.CRM.Storages)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.CloseAll()
		},
	})
	return p
}

// Module provides the storage Provider. Backends are registered by importing
// the local and gcs subpackages.
var Module = fx.Options(
	fx.Provide(NewProviderFromConfig),
)

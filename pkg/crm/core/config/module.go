package config

import "go.uber.org/fx"

// NewImportConfigProvider exposes the engine section on its own.
func NewImportConfigProvider(cfg *Config) *ImportConfig {
	return &cfg.CRM.Import
}

// NewHubSpotConfigProvider exposes the remote CRM section on its own.
func NewHubSpotConfigProvider(cfg *Config) *HubSpotConfig {
	return &cfg.CRM.HubSpot
}

// Module provides the configuration sections consumed by engine and adapter modules.
// The *Config itself is supplied by the application after LoadConfig.
var Module = fx.Options(
	fx.Provide(NewImportConfigProvider),
	fx.Provide(NewHubSpotConfigProvider),
)

package app

import (
	"github.com/tigerroll/crmimport/pkg/crm/adapter/hubspot"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/simulated"
	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// NewObjectStore returns the simulated store in demo mode and the HubSpot client otherwise.
func NewObjectStore(cfg *config.Config) port.ObjectStore {
	if cfg.DemoMode() {
		return simulated.NewStore(cfg.CRM.Simulation)
	}
	logger.Infof("Importing into %s (api key %s).", cfg.CRM.HubSpot.BaseURL, cfg.MaskValue("api_key", cfg.CRM.HubSpot.APIKey))
	return hubspot.NewClient(&cfg.CRM.HubSpot)
}

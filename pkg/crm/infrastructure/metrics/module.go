// Package metrics implements the engine's MetricRecorder and Tracer ports
// with Prometheus and OpenTelemetry.
package metrics

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	coremetrics "github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/telemetry"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// RecorderParams holds the dependencies of NewMetricRecorder.
type RecorderParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Telemetry *telemetry.Provider
}

// NewMetricRecorder selects the recorder named by crm.metrics.backend.
// The Prometheus recorder is served on listen_addr when one is configured.
func NewMetricRecorder(p RecorderParams) (coremetrics.MetricRecorder, error) {
	cfg := p.Config.CRM.Metrics
	switch cfg.Backend {
	case "prometheus":
		recorder := NewPrometheusRecorder()
		if cfg.ListenAddr != "" {
			server := NewServer(cfg.ListenAddr, recorder.Handler())
			p.Lifecycle.Append(fx.Hook{OnStart: server.Start, OnStop: server.Stop})
		}
		return recorder, nil
	case "otel":
		if !p.Telemetry.Enabled() {
			logger.Warnf("Metrics backend 'otel' selected but telemetry is disabled; metrics are dropped.")
		}
		return NewOTelRecorder(p.Telemetry.Meter())
	case "", "none":
		return coremetrics.NewNoOpMetricRecorder(), nil
	default:
		return nil, fmt.Errorf("unknown metrics backend: %s", cfg.Backend)
	}
}

// NewTracer returns an OpenTelemetry tracer when telemetry is enabled.
func NewTracer(provider *telemetry.Provider) coremetrics.Tracer {
	if !provider.Enabled() {
		return coremetrics.NewNoOpTracer()
	}
	return NewOpenTelemetryTracer(provider.Tracer())
}

// Module is an Fx module that provides the MetricRecorder and the Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)

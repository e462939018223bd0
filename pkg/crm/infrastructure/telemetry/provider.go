// Package telemetry sets up the OpenTelemetry tracer and meter providers and their OTLP exporters.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// InstrumentationName names the tracer and meter of the import engine.
const InstrumentationName = "github.com/tigerroll/crmimport"

const shutdownTimeout = 10 * time.Second

// Provider owns the SDK tracer and meter providers. When telemetry is disabled it
// hands out no-op implementations.
type Provider struct {
	cfg    config.TelemetryConfig
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

// NewProvider creates the SDK providers with OTLP exporters over grpc or http.
func NewProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	p := &Provider{cfg: cfg}
	if !cfg.Enabled {
		logger.Debugf("Telemetry disabled, using no-op providers.")
		return p, nil
	}

	spanExporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Infof("Telemetry: exporting to %s over %s (sampling ratio %.2f).", cfg.Endpoint, cfg.Protocol, cfg.SamplingRatio)
	return p, nil
}

func newSpanExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func newMetricExporter(ctx context.Context, cfg config.TelemetryConfig) (sdkmetric.Exporter, error) {
	if cfg.Protocol == "http" {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// Enabled reports whether SDK providers were created.
func (p *Provider) Enabled() bool {
	return p.tracer != nil
}

// Tracer returns the engine's tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return tracenoop.NewTracerProvider().Tracer(InstrumentationName)
	}
	return p.tracer.Tracer(InstrumentationName)
}

// Meter returns the engine's meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}
	return p.meter.Meter(InstrumentationName)
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if err := p.tracer.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("tracer provider: %w", err))
	}
	if err := p.meter.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("meter provider: %w", err))
	}
	logger.Infof("Telemetry: providers shut down.")
	return result.ErrorOrNil()
}

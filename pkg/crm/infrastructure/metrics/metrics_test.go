package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/simulated"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	coremetrics "github.com/tigerroll/crmimport/pkg/crm/core/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/engine/orchestrator"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/metrics"
	"github.com/tigerroll/crmimport/pkg/crm/infrastructure/telemetry"
	crmtest "github.com/tigerroll/crmimport/pkg/crm/test"
)

func runImport(t *testing.T, opts ...orchestrator.Option) *model.Report {
	t.Helper()
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 5})
	opts = append(opts, orchestrator.WithSleeper((&crmtest.RecordingSleeper{}).Sleep))
	importer := orchestrator.NewImporter(store, crmtest.NewTestImportConfig(), opts...)
	report, err := importer.Run(context.Background(), orchestrator.Input{
		Companies: crmtest.NewTestCompanies("Acme", "Globex"),
		Contacts:  crmtest.NewTestRecords(crmtest.NewTestContact("a@acme.com", "Acme")),
		Tickets:   crmtest.NewTestRecords(crmtest.NewTestTicket("Help", "from a@acme.com")),
	})
	require.NoError(t, err)
	return report
}

func TestPrometheusRecorderCountsRun(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()
	report := runImport(t, orchestrator.WithRecorder(recorder))
	require.Equal(t, 4, report.Succeeded)

	const expected = `
# HELP crmimport_records_total Total records processed by stage and outcome.
# TYPE crmimport_records_total counter
crmimport_records_total{outcome="failed",stage="companies"} 0
crmimport_records_total{outcome="failed",stage="contact_to_company"} 0
crmimport_records_total{outcome="failed",stage="contacts"} 0
crmimport_records_total{outcome="failed",stage="ticket_to_company"} 0
crmimport_records_total{outcome="failed",stage="ticket_to_contact"} 0
crmimport_records_total{outcome="failed",stage="tickets"} 0
crmimport_records_total{outcome="succeeded",stage="companies"} 2
crmimport_records_total{outcome="succeeded",stage="contact_to_company"} 1
crmimport_records_total{outcome="succeeded",stage="contacts"} 1
crmimport_records_total{outcome="succeeded",stage="ticket_to_company"} 1
crmimport_records_total{outcome="succeeded",stage="ticket_to_contact"} 1
crmimport_records_total{outcome="succeeded",stage="tickets"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "crmimport_records_total"))

	runs, err := testutil.GatherAndCount(recorder.Registry(), "crmimport_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestPrometheusRecorderLabels(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()
	ctx := context.Background()

	recorder.RecordRetry(ctx, "contacts", "RateLimited")
	recorder.RecordRetry(ctx, "contacts", "RateLimited")
	recorder.RecordValidationError(ctx, model.EntityContact, model.KindMissingField)
	recorder.RecordAssociation(ctx, model.RelationContactToCompany, false)
	recorder.RecordChunk(ctx, "contacts", "succeeded", 10, 2, 1500*time.Millisecond)
	recorder.RecordRunEnd(ctx, &model.Report{RunID: "r", SuccessRate: 87.5, Duration: time.Second})

	expected := `
# HELP crmimport_chunk_retries_total Total chunk retries by reason.
# TYPE crmimport_chunk_retries_total counter
crmimport_chunk_retries_total{reason="RateLimited",stage="contacts"} 2
# HELP crmimport_associations_total Total association edges by kind and outcome.
# TYPE crmimport_associations_total counter
crmimport_associations_total{kind="contact_to_company",success="false"} 1
# HELP crmimport_run_success_rate_percent Overall success rate of the last finished run.
# TYPE crmimport_run_success_rate_percent gauge
crmimport_run_success_rate_percent 87.5
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected),
		"crmimport_chunk_retries_total", "crmimport_associations_total", "crmimport_run_success_rate_percent"))

	validation, err := testutil.GatherAndCount(recorder.Registry(), "crmimport_validation_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, validation)
}

func TestServerExposesRegistry(t *testing.T) {
	recorder := metrics.NewPrometheusRecorder()
	recorder.RecordRunStart(context.Background(), "r-1")

	server := metrics.NewServer("127.0.0.1:0", recorder.Handler())
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `crmimport_runs_total{status="started"} 1`)
}

func TestOTelRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	recorder, err := metrics.NewOTelRecorder(provider.Meter("test"))
	require.NoError(t, err)
	runImport(t, orchestrator.WithRecorder(recorder))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}
	require.Contains(t, found, "crmimport.records")
	require.Contains(t, found, "crmimport.run.success_rate")
	require.Contains(t, found, "crmimport.chunk.attempts")

	var succeeded int64
	for _, dp := range found["crmimport.records"].(metricdata.Sum[int64]).DataPoints {
		if v, ok := dp.Attributes.Value("crm.outcome"); ok && v.AsString() == "succeeded" {
			succeeded += dp.Value
		}
	}
	// Four records plus three association edges.
	assert.Equal(t, int64(7), succeeded)

	gauge := found["crmimport.run.success_rate"].(metricdata.Gauge[float64])
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 100.0, gauge.DataPoints[0].Value)
}

func TestOpenTelemetryTracerSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	runImport(t, orchestrator.WithTracer(metrics.NewOpenTelemetryTracer(tp.Tracer("test"))))

	names := map[string]int{}
	var root sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		names[s.Name()]++
		if s.Name() == "import.run" {
			root = s
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, 1, names["import.stage.companies"])
	assert.Equal(t, 1, names["import.stage.associations"])
	assert.GreaterOrEqual(t, names["import.chunk"], 3)

	for _, s := range sr.Ended() {
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID(), s.Name())
	}
}

func TestOpenTelemetryTracerErrorsAndEvents(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := metrics.NewOpenTelemetryTracer(tp.Tracer("test"))

	ctx, end := tracer.StartChunkSpan(context.Background(), model.EntityBatch{EntityType: model.EntityContact, Number: 2})
	tracer.RecordEvent(ctx, "chunk.retry", map[string]interface{}{"attempt": 2, "after": "RateLimited", "other": 1.5})
	tracer.RecordError(ctx, "batch", errors.New("boom"))
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)

	var eventNames []string
	for _, e := range spans[0].Events() {
		eventNames = append(eventNames, e.Name)
	}
	assert.Equal(t, []string{"chunk.retry", "exception"}, eventNames)
}

func TestTracerWithoutSpanIsNoop(t *testing.T) {
	tracer := metrics.NewOpenTelemetryTracer(sdktrace.NewTracerProvider().Tracer("test"))
	assert.NotPanics(t, func() {
		tracer.RecordError(context.Background(), "batch", errors.New("x"))
		tracer.RecordEvent(context.Background(), "e", nil)
	})
}

func TestNewMetricRecorderSelectsBackend(t *testing.T) {
	disabled, err := telemetry.NewProvider(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)

	params := func(backend string) metrics.RecorderParams {
		cfg := config.NewConfig()
		cfg.CRM.Metrics.Backend = backend
		return metrics.RecorderParams{Lifecycle: fxtest.NewLifecycle(t), Config: cfg, Telemetry: disabled}
	}

	recorder, err := metrics.NewMetricRecorder(params("prometheus"))
	require.NoError(t, err)
	assert.IsType(t, &metrics.PrometheusRecorder{}, recorder)

	recorder, err = metrics.NewMetricRecorder(params("otel"))
	require.NoError(t, err)
	assert.IsType(t, &metrics.OTelRecorder{}, recorder)

	recorder, err = metrics.NewMetricRecorder(params("none"))
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.NoOpMetricRecorder{}, recorder)

	_, err = metrics.NewMetricRecorder(params("statsd"))
	assert.ErrorContains(t, err, "unknown metrics backend")

	assert.IsType(t, &coremetrics.NoOpTracer{}, metrics.NewTracer(disabled))
}

package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/crmimport/internal/app"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/hubspot"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/simulated"
	"github.com/tigerroll/crmimport/pkg/crm/adapter/storage"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/storage/local"
	"github.com/tigerroll/crmimport/pkg/crm/component/writer"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/engine/orchestrator"
	crmtest "github.com/tigerroll/crmimport/pkg/crm/test"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeInput(t *testing.T) config.InputConfig {
	t.Helper()
	dir := t.TempDir()
	return config.InputConfig{
		Companies: writeFile(t, dir, "companies.csv", "name,domain\nAcme,acme.com\nGlobex,globex.com\n"),
		Contacts: writeFile(t, dir, "contacts.csv", "firstname,email,company\n"+
			"Ann,ann@acme.com,Acme\n"+
			"Bob,not-an-email,Acme\n"+
			"Cid,cid@globex.com,Globex\n"),
		Tickets: writeFile(t, dir, "tickets.csv", "subject,content\n"+
			"Login broken,Reported by ann@acme.com\n"+
			"Billing,No contact given\n"),
	}
}

func newImporter(store *simulated.Store) *orchestrator.Importer {
	return orchestrator.NewImporter(store, crmtest.NewTestImportConfig(),
		orchestrator.WithSleeper((&crmtest.RecordingSleeper{}).Sleep))
}

func TestImportRunnerWritesReport(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 9})
	var out bytes.Buffer
	runner := app.NewImportRunner(newImporter(store), nil, writeInput(t), &out)

	require.Equal(t, app.ExitOK, runner.Run(context.Background()))

	var view app.ReportView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.Len(t, view.Entities, 3)
	assert.Equal(t, "companies", view.Entities[0].Entity)
	assert.Equal(t, 2, view.Entities[0].Succeeded)
	assert.Equal(t, 3, view.Entities[1].Attempted)
	assert.Equal(t, 2, view.Entities[1].Succeeded)
	require.Len(t, view.Entities[1].ValidationErrors, 1)
	assert.Equal(t, "invalid_format", view.Entities[1].ValidationErrors[0].Kind)
	assert.Equal(t, 2, view.Entities[2].Succeeded)

	created := map[string]int{}
	for _, a := range view.Associations {
		created[a.Kind] = a.Created
	}
	assert.Equal(t, 1, created["ticket_to_contact"])
	assert.Equal(t, 7, view.Overall.Attempted)
	assert.Equal(t, 6, view.Overall.Succeeded)
	assert.Empty(t, view.ExportedTo)
}

func TestImportRunnerExports(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 9})
	provider := storage.NewProvider(map[string]interface{}{
		"export": map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
	})
	conn, err := provider.GetConnection(context.Background(), "export")
	require.NoError(t, err)
	exporter, err := writer.NewParquetExporter(conn, config.ExportConfig{Prefix: "runs", Compression: "SNAPPY"})
	require.NoError(t, err)

	var out bytes.Buffer
	runner := app.NewImportRunner(newImporter(store), exporter, writeInput(t), &out)
	require.Equal(t, app.ExitOK, runner.Run(context.Background()))

	var view app.ReportView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Contains(t, view.ExportedTo, "runs/run_id="+view.RunID+"/outcomes_")

	var listed []string
	require.NoError(t, conn.ListObjects(context.Background(), "", "runs/", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.Equal(t, []string{view.ExportedTo}, listed)
}

func TestImportRunnerInterrupted(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 9})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := crmtest.NewTestImportConfig()
	cfg.BatchSize = 1
	// Cancel between the first and the second company chunk.
	sleeper := &crmtest.RecordingSleeper{OnSleep: func(time.Duration) { cancel() }}
	importer := orchestrator.NewImporter(store, cfg, orchestrator.WithSleeper(sleeper.Sleep))

	var out bytes.Buffer
	runner := app.NewImportRunner(importer, nil, writeInput(t), &out)
	assert.Equal(t, app.ExitInterrupted, runner.Run(ctx))

	var view app.ReportView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.True(t, view.Interrupted)
	assert.Equal(t, 1, view.Entities[0].Succeeded)
	assert.Len(t, store.Objects("companies"), 1)
}

func TestImportRunnerMissingInput(t *testing.T) {
	store := simulated.NewStore(config.SimulationConfig{SuccessRate: 1, Seed: 9})
	input := config.InputConfig{Companies: filepath.Join(t.TempDir(), "missing.csv")}

	var out bytes.Buffer
	runner := app.NewImportRunner(newImporter(store), nil, input, &out)
	assert.Equal(t, app.ExitFailure, runner.Run(context.Background()))
	assert.Empty(t, out.String())
}

func TestNewObjectStore(t *testing.T) {
	cfg := config.NewConfig()
	assert.IsType(t, &simulated.Store{}, app.NewObjectStore(cfg))

	cfg.CRM.HubSpot.APIKey = config.PlaceholderAPIKey
	assert.IsType(t, &simulated.Store{}, app.NewObjectStore(cfg))

	cfg.CRM.HubSpot.APIKey = "pat-na1-123"
	assert.IsType(t, &hubspot.Client{}, app.NewObjectStore(cfg))

	cfg.CRM.Simulation.Enabled = true
	assert.IsType(t, &simulated.Store{}, app.NewObjectStore(cfg))
}

func TestOptionsResolveGraph(t *testing.T) {
	cfg := config.NewConfig()
	cfg.CRM.Metrics.Backend = "prometheus"
	var out bytes.Buffer

	err := fx.ValidateApp(
		app.Options(context.Background(), cfg, &out),
		fx.Invoke(func(*app.ImportRunner) {}),
	)
	assert.NoError(t, err)
}

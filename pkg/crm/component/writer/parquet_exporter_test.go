package writer_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/storage"
	_ "github.com/tigerroll/crmimport/pkg/crm/adapter/storage/local"
	"github.com/tigerroll/crmimport/pkg/crm/component/writer"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

func newReport() *model.Report {
	report := model.NewReport("run-1", time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), "skip")
	report.FinishedAt = report.StartedAt.Add(time.Minute)

	companies := report.Entities[model.EntityCompany]
	companies.AddSuccess(0, "c-100")
	companies.AddSuccess(1, "c-101")
	contacts := report.Entities[model.EntityContact]
	contacts.AddFailure(model.RecordFailure{Index: 4, Chunk: 0, Kind: model.FailurePermanent, StatusCode: 400, Message: "bad email"})
	return report
}

func newStorage(t *testing.T) (storage.StorageConnection, string) {
	t.Helper()
	dir := t.TempDir()
	provider := storage.NewProvider(map[string]interface{}{
		"export": map[string]interface{}{"type": "local", "base_dir": dir},
	})
	t.Cleanup(func() { _ = provider.CloseAll() })
	conn, err := provider.GetConnection(context.Background(), "export")
	require.NoError(t, err)
	return conn, dir
}

func TestOutcomeRows(t *testing.T) {
	rows := writer.OutcomeRows(newReport())
	require.Len(t, rows, 3)

	assert.Equal(t, writer.OutcomeRow{
		RunID: "run-1", Stage: "companies", RowIndex: 0, Chunk: -1,
		Status: writer.StatusCreated, RemoteID: "c-100",
		FinishedAt: time.Date(2026, 5, 4, 10, 1, 0, 0, time.UTC).UnixMilli(),
	}, rows[0])
	assert.Equal(t, "contacts", rows[2].Stage)
	assert.Equal(t, writer.StatusFailed, rows[2].Status)
	assert.Equal(t, int32(400), rows[2].StatusCode)
	assert.Equal(t, string(model.FailurePermanent), rows[2].FailureKind)
}

func TestParquetExporterWritesReadableFile(t *testing.T) {
	for _, compression := range []string{"SNAPPY", "GZIP", "NONE"} {
		conn, dir := newStorage(t)
		exporter, err := writer.NewParquetExporter(conn, config.ExportConfig{
			Bucket: "outcomes", Prefix: "/crmimport/", Compression: compression,
		})
		require.NoError(t, err)
		exporter.WithClock(func() time.Time { return time.Date(2026, 5, 4, 10, 2, 3, 0, time.UTC) })

		objectName, err := exporter.Export(context.Background(), newReport())
		require.NoError(t, err, compression)
		assert.Equal(t, "crmimport/run_id=run-1/outcomes_20260504T100203Z.parquet", objectName)

		fr, err := local.NewLocalFileReader(filepath.Join(dir, "outcomes", filepath.FromSlash(objectName)))
		require.NoError(t, err)
		pr, err := reader.NewParquetReader(fr, new(writer.OutcomeRow), 1)
		require.NoError(t, err)
		require.Equal(t, int64(3), pr.GetNumRows())

		rows := make([]writer.OutcomeRow, 3)
		require.NoError(t, pr.Read(&rows))
		pr.ReadStop()
		require.NoError(t, fr.Close())

		assert.Equal(t, writer.OutcomeRows(newReport()), rows, compression)
	}
}

func TestParquetExporterSkipsEmptyReport(t *testing.T) {
	conn, dir := newStorage(t)
	exporter, err := writer.NewParquetExporter(conn, config.ExportConfig{Compression: "SNAPPY"})
	require.NoError(t, err)

	objectName, err := exporter.Export(context.Background(), model.NewReport("empty", time.Now(), "skip"))
	require.NoError(t, err)
	assert.Empty(t, objectName)

	var listed []string
	require.NoError(t, conn.ListObjects(context.Background(), "", "", func(name string) error {
		listed = append(listed, name)
		return nil
	}))
	assert.Empty(t, listed, dir)
}

func TestNewParquetExporterRejectsCompression(t *testing.T) {
	conn, _ := newStorage(t)
	_, err := writer.NewParquetExporter(conn, config.ExportConfig{Compression: "LZ4"})
	assert.ErrorContains(t, err, "unsupported compression type")
}

func TestExporterProvider(t *testing.T) {
	cfg := config.NewConfig()
	exporter, err := writer.NewExporterProvider(writer.ExporterParams{Config: cfg, Storages: storage.NewProvider(nil)})
	require.NoError(t, err)
	assert.Nil(t, exporter)

	cfg.CRM.Export.Enabled = true
	_, err = writer.NewExporterProvider(writer.ExporterParams{Config: cfg, Storages: storage.NewProvider(nil)})
	assert.ErrorContains(t, err, "export storage 'export' is not usable")
}

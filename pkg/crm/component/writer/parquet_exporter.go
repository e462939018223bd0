// Package writer exports the per-record outcomes of a run as Parquet files.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/crmimport/pkg/crm/adapter/storage"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const moduleWriter = "writer"

// Outcome statuses written to OutcomeRow.Status.
const (
	StatusCreated = "created"
	StatusFailed  = "failed"
)

// OutcomeRow is one record outcome of a run.
// It includes parquet tags for serialization to Parquet format.
// TargetRemoteID is set on created association rows only.
type OutcomeRow struct {
	RunID          string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Stage          string `parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8"`
	RowIndex       int64  `parquet:"name=row_index, type=INT64"`
	Chunk          int32  `parquet:"name=chunk, type=INT32"`
	Status         string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	RemoteID       string `parquet:"name=remote_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TargetRemoteID string `parquet:"name=target_remote_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FailureKind    string `parquet:"name=failure_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	StatusCode     int32  `parquet:"name=status_code, type=INT32"`
	Message        string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	FinishedAt     int64  `parquet:"name=finished_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// OutcomeRows flattens report into one row per created or failed record,
// entity stages first, then association kinds.
func OutcomeRows(report *model.Report) []OutcomeRow {
	finished := report.FinishedAt.UnixMilli()
	var rows []OutcomeRow
	appendResult := func(stage string, result *model.ImportResult) {
		if result == nil {
			return
		}
		for _, c := range result.Created {
			rows = append(rows, OutcomeRow{
				RunID:          report.RunID,
				Stage:          stage,
				RowIndex:       int64(c.Index),
				Chunk:          -1,
				Status:         StatusCreated,
				RemoteID:       c.RemoteID,
				TargetRemoteID: c.TargetRemoteID,
				FinishedAt:     finished,
			})
		}
		for _, f := range result.Failures {
			rows = append(rows, OutcomeRow{
				RunID:       report.RunID,
				Stage:       stage,
				RowIndex:    int64(f.Index),
				Chunk:       int32(f.Chunk),
				Status:      StatusFailed,
				FailureKind: string(f.Kind),
				StatusCode:  int32(f.StatusCode),
				Message:     f.Message,
				FinishedAt:  finished,
			})
		}
	}
	for _, entity := range model.ImportOrder {
		appendResult(string(entity), report.Entities[entity])
	}
	for _, kind := range model.RelationKinds {
		appendResult(string(kind), report.Associations[kind])
	}
	return rows
}

// ParquetExporter writes OutcomeRows to a storage connection.
type ParquetExporter struct {
	conn        storage.StorageConnection
	bucket      string
	prefix      string
	compression parquet.CompressionCodec
	now         func() time.Time
}

// NewParquetExporter creates an exporter for the export section.
func NewParquetExporter(conn storage.StorageConnection, cfg config.ExportConfig) (*ParquetExporter, error) {
	codec, err := getCompressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewBatchError(moduleWriter,
			fmt.Sprintf("invalid compression type '%s'", cfg.Compression), err, false, false)
	}
	return &ParquetExporter{
		conn:        conn,
		bucket:      cfg.Bucket,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		compression: codec,
		now:         time.Now,
	}, nil
}

// WithClock replaces the clock used for object names.
func (e *ParquetExporter) WithClock(now func() time.Time) *ParquetExporter {
	e.now = now
	return e
}

// ObjectName returns the object name used for runID at t.
func (e *ParquetExporter) ObjectName(runID string, t time.Time) string {
	return path.Join(e.prefix, "run_id="+runID, fmt.Sprintf("outcomes_%s.parquet", t.UTC().Format("20060102T150405Z")))
}

// Export writes the outcomes of report and returns the object name.
// A report with no outcomes uploads nothing and returns "".
func (e *ParquetExporter) Export(ctx context.Context, report *model.Report) (string, error) {
	rows := OutcomeRows(report)
	if len(rows) == 0 {
		logger.Infof("Export: run '%s' has no record outcomes, skipping Parquet file generation.", report.RunID)
		return "", nil
	}

	buf := new(bytes.Buffer)
	if err := e.encode(buf, rows); err != nil {
		return "", err
	}

	objectName := e.ObjectName(report.RunID, e.now())
	logger.Debugf("Export: uploading %d bytes to %s/%s", buf.Len(), e.conn.Name(), objectName)
	if err := e.conn.Upload(ctx, e.bucket, objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewBatchError(moduleWriter,
			fmt.Sprintf("failed to upload '%s'", objectName), err, false, true)
	}
	logger.Infof("Export: wrote %d outcomes of run '%s' to %s", len(rows), report.RunID, objectName)
	return objectName, nil
}

func (e *ParquetExporter) encode(buf *bytes.Buffer, rows []OutcomeRow) (err error) {
	pw, err := writer.NewParquetWriterFromWriter(buf, new(OutcomeRow), 1)
	if err != nil {
		return exception.NewBatchError(moduleWriter, "failed to create Parquet writer", err, false, false)
	}
	pw.RowGroupSize = 8 * 1024 * 1024
	pw.CompressionType = e.compression

	var result *multierror.Error
	for i := range rows {
		if werr := pw.Write(rows[i]); werr != nil {
			result = multierror.Append(result, fmt.Errorf("row %d: %w", i, werr))
			break
		}
	}

	// WriteStop can panic inside the library on malformed schemas.
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewBatchError(moduleWriter, fmt.Sprintf("Parquet writer panicked: %v", r), nil, false, false)
		}
	}()
	if serr := pw.WriteStop(); serr != nil {
		result = multierror.Append(result, fmt.Errorf("write stop: %w", serr))
	}
	if result.ErrorOrNil() != nil {
		return exception.NewBatchError(moduleWriter, "failed to encode outcomes", result, false, false)
	}
	return nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

package app

import (
	"context"
	"errors"
	"io"

	"github.com/tigerroll/crmimport/pkg/crm/component/reader"
	"github.com/tigerroll/crmimport/pkg/crm/component/writer"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/engine/orchestrator"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ImportRunner loads the input files, runs the import and renders the report.
type ImportRunner struct {
	importer *orchestrator.Importer
	exporter *writer.ParquetExporter
	input    config.InputConfig
	out      io.Writer
}

// NewImportRunner creates an ImportRunner. exporter may be nil.
func NewImportRunner(importer *orchestrator.Importer, exporter *writer.ParquetExporter, input config.InputConfig, out io.Writer) *ImportRunner {
	return &ImportRunner{importer: importer, exporter: exporter, input: input, out: out}
}

// LoadInput reads the three configured CSV files.
func LoadInput(cfg config.InputConfig) (orchestrator.Input, error) {
	var in orchestrator.Input
	var err error
	if in.Companies, err = reader.LoadRecords(cfg.Companies); err != nil {
		return in, err
	}
	if in.Contacts, err = reader.LoadRecords(cfg.Contacts); err != nil {
		return in, err
	}
	if in.Tickets, err = reader.LoadRecords(cfg.Tickets); err != nil {
		return in, err
	}
	return in, nil
}

// Run executes one import and returns the process exit code.
func (r *ImportRunner) Run(ctx context.Context) int {
	in, err := LoadInput(r.input)
	if err != nil {
		logger.Errorf("Failed to load input: %v", err)
		return ExitFailure
	}

	report, runErr := r.importer.Run(ctx, in)
	if report == nil {
		if exception.IsConfiguration(runErr) {
			logger.Errorf("Import aborted before any submission: %s", exception.ExtractErrorMessage(runErr))
		} else {
			logger.Errorf("Import aborted: %v", runErr)
		}
		return ExitFailure
	}

	view := NewReportView(report)
	if r.exporter != nil {
		objectName, err := r.exporter.Export(context.WithoutCancel(ctx), report)
		if err != nil {
			logger.Errorf("Failed to export outcomes of run '%s': %v", report.RunID, err)
		}
		view.ExportedTo = objectName
	}
	if err := WriteJSON(r.out, view); err != nil {
		logger.Errorf("Failed to write report: %v", err)
		return ExitFailure
	}

	if errors.Is(runErr, context.Canceled) || report.Interrupted {
		return ExitInterrupted
	}
	return ExitOK
}

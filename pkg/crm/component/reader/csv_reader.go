// Package reader loads CSV exports into records.
package reader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const moduleReader = "reader"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadRecords reads the CSV file at path. An empty path yields no records.
func LoadRecords(path string) ([]*model.Record, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, exception.NewBatchError(moduleReader, fmt.Sprintf("failed to open '%s'", path), err, false, false)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, exception.NewBatchError(moduleReader, fmt.Sprintf("failed to read '%s'", path), err, false, false)
	}
	logger.Infof("Loaded %d records from %s.", len(records), path)
	return records, nil
}

// ReadRecords parses a header row followed by data rows. Each record's Index is its
// zero-based data row number; values are trimmed and missing trailing cells are empty.
func ReadRecords(r io.Reader) ([]*model.Record, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []*model.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+1, err)
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			fields[name] = value
		}
		records = append(records, model.NewRecord(len(records), fields))
	}
	return records, nil
}

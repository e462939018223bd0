package validate

import (
	"math"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// Completeness returns the percentage of non-empty cells over the union of columns,
// rounded to two decimals. No records or no columns yields 0.
func Completeness(records []*model.Record) float64 {
	cols := model.Columns(records)
	total := len(cols) * len(records)
	if total == 0 {
		return 0
	}
	filled := 0
	for _, r := range records {
		for _, c := range cols {
			if r.Get(c) != "" {
				filled++
			}
		}
	}
	return math.Round(float64(filled)/float64(total)*10000) / 100
}

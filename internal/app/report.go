package app

import (
	"encoding/json"
	"io"
	"time"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

// ReportView is the JSON rendering of a run report.
type ReportView struct {
	RunID            string            `json:"run_id"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	DurationMs       int64             `json:"duration_ms"`
	ValidationPolicy string            `json:"validation_policy"`
	Interrupted      bool              `json:"interrupted"`
	Overall          OverallView       `json:"overall"`
	Entities         []StageView       `json:"entities"`
	Associations     []AssociationView `json:"associations"`
	ExportedTo       string            `json:"exported_to,omitempty"`
}

// OverallView holds the run totals over the three entity types.
type OverallView struct {
	Attempted           int     `json:"attempted"`
	Succeeded           int     `json:"succeeded"`
	Failed              int     `json:"failed"`
	SuccessRate         float64 `json:"success_rate"`
	AssociationsCreated int     `json:"associations_created"`
	ValidationErrors    int     `json:"validation_errors"`
}

// StageView is one entity type's result.
type StageView struct {
	Entity           string                `json:"entity"`
	Attempted        int                   `json:"attempted"`
	Succeeded        int                   `json:"succeeded"`
	Failed           int                   `json:"failed"`
	DurationMs       int64                 `json:"duration_ms"`
	Completeness     float64               `json:"completeness"`
	Aborted          bool                  `json:"aborted,omitempty"`
	ValidationErrors []ValidationErrorView `json:"validation_errors,omitempty"`
	Failures         []FailureView         `json:"failures,omitempty"`
}

// ValidationErrorView is one validation error.
type ValidationErrorView struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// FailureView is one record that was not created.
type FailureView struct {
	Row        int    `json:"row"`
	Chunk      int    `json:"chunk"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// AssociationView is one association kind's result.
type AssociationView struct {
	Kind    string `json:"kind"`
	Created int    `json:"created"`
	Failed  int    `json:"failed"`
}

// NewReportView converts report in import order.
func NewReportView(report *model.Report) ReportView {
	view := ReportView{
		RunID:            report.RunID,
		StartedAt:        report.StartedAt,
		FinishedAt:       report.FinishedAt,
		DurationMs:       report.Duration.Milliseconds(),
		ValidationPolicy: report.ValidationPolicy,
		Interrupted:      report.Interrupted,
		Overall: OverallView{
			Attempted:           report.Attempted,
			Succeeded:           report.Succeeded,
			Failed:              report.Failed,
			SuccessRate:         report.SuccessRate,
			AssociationsCreated: report.AssociationsCreated,
			ValidationErrors:    report.ValidationErrorCount(),
		},
	}
	for _, entity := range model.ImportOrder {
		res := report.Entity(entity)
		stage := StageView{
			Entity:       string(entity),
			Attempted:    res.Attempted,
			Succeeded:    res.Succeeded,
			Failed:       res.Failed,
			DurationMs:   res.Duration.Milliseconds(),
			Completeness: res.Completeness,
			Aborted:      res.Aborted,
		}
		for _, v := range res.ValidationErrors {
			stage.ValidationErrors = append(stage.ValidationErrors, ValidationErrorView{
				Row: v.Row, Field: v.Field, Kind: string(v.Kind), Message: v.Message,
			})
		}
		for _, f := range res.Failures {
			stage.Failures = append(stage.Failures, FailureView{
				Row: f.Index, Chunk: f.Chunk, Kind: string(f.Kind), StatusCode: f.StatusCode, Message: f.Message,
			})
		}
		view.Entities = append(view.Entities, stage)
	}
	for _, kind := range model.RelationKinds {
		res := report.Association(kind)
		view.Associations = append(view.Associations, AssociationView{
			Kind: string(kind), Created: res.Succeeded, Failed: res.Failed,
		})
	}
	return view
}

// WriteJSON writes view as indented JSON followed by a newline.
func WriteJSON(w io.Writer, view ReportView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

func fromReport(report *model.Report, status string) *RunEntity {
	e := &RunEntity{
		ID:                  report.RunID,
		StartedAt:           report.StartedAt,
		Status:              status,
		Attempted:           report.Attempted,
		Succeeded:           report.Succeeded,
		Failed:              report.Failed,
		SuccessRate:         report.SuccessRate,
		AssociationsCreated: report.AssociationsCreated,
		ValidationPolicy:    report.ValidationPolicy,
	}
	if !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		e.FinishedAt = &finished
	}
	return e
}

func fromResult(runID, stage string, res *model.ImportResult, recordedAt time.Time) *StageResultEntity {
	return &StageResultEntity{
		ID:               uuid.NewString(),
		RunID:            runID,
		Stage:            stage,
		Attempted:        res.Attempted,
		Succeeded:        res.Succeeded,
		Failed:           res.Failed,
		SuccessRate:      res.SuccessRate(),
		Completeness:     res.Completeness,
		ValidationErrors: len(res.ValidationErrors),
		Aborted:          res.Aborted,
		DurationMs:       res.Duration.Milliseconds(),
		RecordedAt:       recordedAt,
	}
}

// outcomesOf flattens a result into one row per record: created records first, then failures.
func outcomesOf(runID, stage string, res *model.ImportResult) []RecordOutcomeEntity {
	rows := make([]RecordOutcomeEntity, 0, len(res.Created)+len(res.Failures))
	for _, c := range res.Created {
		rows = append(rows, RecordOutcomeEntity{
			ID:             uuid.NewString(),
			RunID:          runID,
			Stage:          stage,
			RowIndex:       c.Index,
			Chunk:          -1,
			Status:         OutcomeCreated,
			RemoteID:       c.RemoteID,
			TargetRemoteID: c.TargetRemoteID,
		})
	}
	for _, f := range res.Failures {
		rows = append(rows, RecordOutcomeEntity{
			ID:          uuid.NewString(),
			RunID:       runID,
			Stage:       stage,
			RowIndex:    f.Index,
			Chunk:       f.Chunk,
			Status:      OutcomeFailed,
			FailureKind: string(f.Kind),
			StatusCode:  f.StatusCode,
			Message:     f.Message,
		})
	}
	return rows
}

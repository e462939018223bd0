// Package journal persists import runs, stage results and record outcomes through gorm.
package journal

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const (
	moduleJournal = "GormJournal"

	// outcomeBatchSize bounds the rows per INSERT statement.
	outcomeBatchSize = 200
)

// GormJournal implements port.Journal over a gorm connection.
type GormJournal struct {
	db     *gorm.DB
	closer func() error
	now    func() time.Time
}

// NewGormJournal creates a journal on db. closer, if not nil, runs on Close.
func NewGormJournal(db *gorm.DB, closer func() error) *GormJournal {
	return &GormJournal{db: db, closer: closer, now: time.Now}
}

// BeginRun inserts the run row with status running.
func (j *GormJournal) BeginRun(ctx context.Context, report *model.Report) error {
	entity := fromReport(report, StatusRunning)
	if err := j.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(moduleJournal, fmt.Sprintf("failed to save run '%s'", report.RunID), err, false, false)
	}
	logger.Debugf("%s: run '%s' recorded.", moduleJournal, report.RunID)
	return nil
}

// RecordStage stores the stage figures and one outcome row per record in a single transaction.
func (j *GormJournal) RecordStage(ctx context.Context, runID string, stage string, result *model.ImportResult) error {
	if result == nil {
		return nil
	}
	stageRow := fromResult(runID, stage, result, j.now())
	outcomes := outcomesOf(runID, stage, result)

	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(stageRow).Error; err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return nil
		}
		return tx.CreateInBatches(outcomes, outcomeBatchSize).Error
	})
	if err != nil {
		return exception.NewBatchError(moduleJournal, fmt.Sprintf("failed to save stage '%s' of run '%s'", stage, runID), err, false, false)
	}
	logger.Debugf("%s: stage '%s' of run '%s' recorded (%d outcomes).", moduleJournal, stage, runID, len(outcomes))
	return nil
}

// FinishRun updates the run row with the final figures.
func (j *GormJournal) FinishRun(ctx context.Context, report *model.Report) error {
	status := StatusCompleted
	if report.Interrupted {
		status = StatusInterrupted
	}
	entity := fromReport(report, status)
	res := j.db.WithContext(ctx).Model(&RunEntity{}).Where("id = ?", report.RunID).Updates(map[string]interface{}{
		"finished_at":          entity.FinishedAt,
		"status":               entity.Status,
		"attempted":            entity.Attempted,
		"succeeded":            entity.Succeeded,
		"failed":               entity.Failed,
		"success_rate":         entity.SuccessRate,
		"associations_created": entity.AssociationsCreated,
	})
	if res.Error != nil {
		return exception.NewBatchError(moduleJournal, fmt.Sprintf("failed to update run '%s'", report.RunID), res.Error, false, false)
	}
	if res.RowsAffected == 0 {
		return exception.NewBatchError(moduleJournal, fmt.Sprintf("run '%s' not found", report.RunID), nil, false, false)
	}
	logger.Infof("%s: run '%s' %s.", moduleJournal, report.RunID, status)
	return nil
}

// Close releases the underlying connection.
func (j *GormJournal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer()
}

// Run loads a run row.
func (j *GormJournal) Run(ctx context.Context, runID string) (*RunEntity, error) {
	var run RunEntity
	if err := j.db.WithContext(ctx).Where("id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// StageResults loads the stage rows of a run in insertion order.
func (j *GormJournal) StageResults(ctx context.Context, runID string) ([]StageResultEntity, error) {
	var rows []StageResultEntity
	err := j.db.WithContext(ctx).Where("run_id = ?", runID).Order("recorded_at, stage").Find(&rows).Error
	return rows, err
}

// Outcomes loads the record outcomes of one stage ordered by row.
func (j *GormJournal) Outcomes(ctx context.Context, runID, stage string) ([]RecordOutcomeEntity, error) {
	var rows []RecordOutcomeEntity
	err := j.db.WithContext(ctx).Where("run_id = ? AND stage = ?", runID, stage).Order("row_index").Find(&rows).Error
	return rows, err
}

var _ port.Journal = (*GormJournal)(nil)

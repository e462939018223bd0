package journal

import "time"

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

// Record outcome statuses.
const (
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// RunEntity is one row of import_runs.
type RunEntity struct {
	ID                  string `gorm:"primaryKey"`
	StartedAt           time.Time
	FinishedAt          *time.Time
	Status              string
	Attempted           int
	Succeeded           int
	Failed              int
	SuccessRate         float64
	AssociationsCreated int
	ValidationPolicy    string
}

func (RunEntity) TableName() string {
	return "import_runs"
}

// StageResultEntity is one row of import_stage_results: an entity type or a relation kind.
type StageResultEntity struct {
	ID               string `gorm:"primaryKey"`
	RunID            string
	Stage            string
	Attempted        int
	Succeeded        int
	Failed           int
	SuccessRate      float64
	Completeness     float64
	ValidationErrors int
	Aborted          bool
	DurationMs       int64
	RecordedAt       time.Time
}

func (StageResultEntity) TableName() string {
	return "import_stage_results"
}

// RecordOutcomeEntity is one row of import_record_outcomes.
type RecordOutcomeEntity struct {
	ID             string `gorm:"primaryKey"`
	RunID          string
	Stage          string
	RowIndex       int
	Chunk          int
	Status         string
	RemoteID       string
	TargetRemoteID string
	FailureKind    string
	StatusCode     int
	Message        string
}

func (RecordOutcomeEntity) TableName() string {
	return "import_record_outcomes"
}

package models

import "time"

// EtlRunLog records one orchestrator run. Stats holds a JSON object of
// per-stage row counts.
type EtlRunLog struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string     `gorm:"column:run_id;not null;uniqueIndex"`
	StartedAt    time.Time  `gorm:"column:started_at;not null"`
	FinishedAt   *time.Time `gorm:"column:finished_at"`
	Status       string     `gorm:"column:status;not null;default:'in_progress'"`
	FailedStage  *string    `gorm:"column:failed_stage"`
	ErrorMessage *string    `gorm:"column:error_message"`
	Stats        string     `gorm:"column:stats;not null;default:'{}'"`
}

func (EtlRunLog) TableName() string { return "dw.etl_run_log" }

// Package domain contains pipeline and pipeline-run persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the execution state of a pipeline or one of its runs.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Pipeline carries a denormalized status that must track its latest run.
type Pipeline struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OwnerID   snowflake.ID `gorm:"not null;index"`
	ProjectID snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	Status    Status       `gorm:"type:text;not null;default:'pending';index"`
	Error     *string      `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Pipeline) TableName() string { return "pipelines" }

// PipelineRun is a single execution of a pipeline.
type PipelineRun struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	PipelineID  snowflake.ID `gorm:"not null;index"`
	ProjectID   snowflake.ID `gorm:"not null;index"`
	Status      Status       `gorm:"type:text;not null;default:'pending'"`
	StartedAt   time.Time    `gorm:"not null;index"`
	CompletedAt *time.Time   `gorm:""`
	Error       *string      `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PipelineRun) TableName() string { return "pipeline_runs" }

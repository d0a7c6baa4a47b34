// Package domain contains build-artifact persistence models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Artifact is a stored build output whose size is metered in MB.
type Artifact struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OwnerID       snowflake.ID `gorm:"not null;index"`
	ProjectID     snowflake.ID `gorm:"not null;index"`
	PipelineRunID snowflake.ID `gorm:"index"`
	Name          string       `gorm:"type:text;not null"`
	SizeMB        float64      `gorm:"not null"`
	ExpiresAt     *time.Time   `gorm:""`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Artifact) TableName() string { return "artifacts" }

// Reader looks up artifacts for storage metering. Lookups return
// (nil, nil) when the record does not exist.
type Reader interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Artifact, error)
}

var ErrInvalidArtifact = errors.New("invalid_artifact")

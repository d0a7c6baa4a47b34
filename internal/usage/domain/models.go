// Package domain contains persistence models for the usage ledger.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Type is a billable usage category.
type Type string

const (
	TypeBuildMinutes    Type = "build_minutes"
	TypeArtifactStorage Type = "artifact_storage"
)

// Valid reports whether the usage type is known.
func (t Type) Valid() bool {
	return t == TypeBuildMinutes || t == TypeArtifactStorage
}

// UsageRecord is one signed entry in the append-only ledger. Records are
// never mutated or deleted; corrections are offsetting records.
type UsageRecord struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	OwnerID       snowflake.ID   `gorm:"not null;index:ix_usage_records_owner_type_time,priority:1"`
	UsageType     Type           `gorm:"type:text;not null;index:ix_usage_records_owner_type_time,priority:2"`
	Quantity      float64        `gorm:"not null"`
	PipelineRunID snowflake.ID   `gorm:"index"`
	ProjectID     snowflake.ID   `gorm:"index"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	RecordedAt    time.Time      `gorm:"not null;index:ix_usage_records_owner_type_time,priority:3"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Metadata is the closed set of context attached to a ledger record,
// decoded once at the store boundary.
type Metadata struct {
	Source     string `json:"source,omitempty"`
	Action     string `json:"action,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
}

// Encode serializes metadata for storage; empty metadata stores nothing.
func (m Metadata) Encode() (datatypes.JSON, error) {
	if m == (Metadata{}) {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeMetadata parses the stored metadata blob.
func DecodeMetadata(raw datatypes.JSON) (Metadata, error) {
	if len(raw) == 0 {
		return Metadata{}, nil
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// PeriodKey formats the monthly accumulator bucket for a timestamp.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

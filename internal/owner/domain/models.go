// Package domain contains owner entities and their usage-summary projection.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Kind distinguishes the two owner entity types.
type Kind string

const (
	KindUser         Kind = "user"
	KindOrganization Kind = "organization"
)

// User owns pipelines and usage directly.
type User struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	Email        string         `gorm:"type:text;not null;uniqueIndex"`
	Name         string         `gorm:"type:text;not null"`
	UsageSummary datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Organization owns pipelines and usage on behalf of its members.
type Organization struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	Name         string         `gorm:"type:text;not null"`
	Slug         string         `gorm:"type:text;not null;uniqueIndex"`
	UsageSummary datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// UsageSummary maps "YYYY-MM" period keys to per-usage-type totals.
// It is a cache over the usage ledger, updated in the same transaction
// as every ledger append.
type UsageSummary map[string]map[string]float64

// Add accumulates quantity into the period/type bucket, zero-initializing
// absent entries.
func (s UsageSummary) Add(period, usageType string, quantity float64) {
	totals, ok := s[period]
	if !ok {
		totals = make(map[string]float64)
		s[period] = totals
	}
	totals[usageType] += quantity
}

// Total returns the accumulated quantity for a period/type, 0 when absent.
func (s UsageSummary) Total(period, usageType string) float64 {
	return s[period][usageType]
}

// Owner is the resolved view of a user or organization.
type Owner struct {
	ID      snowflake.ID
	Kind    Kind
	Summary UsageSummary
}

// DecodeSummary parses the stored summary blob; empty blobs decode to an
// empty summary.
func DecodeSummary(raw datatypes.JSON) (UsageSummary, error) {
	if len(raw) == 0 {
		return UsageSummary{}, nil
	}
	var summary UsageSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	if summary == nil {
		summary = UsageSummary{}
	}
	return summary, nil
}

// EncodeSummary serializes the summary for storage.
func EncodeSummary(summary UsageSummary) (datatypes.JSON, error) {
	if summary == nil {
		summary = UsageSummary{}
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

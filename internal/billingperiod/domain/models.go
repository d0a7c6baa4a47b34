// Package domain contains billing-period models for storage invoicing.
package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status tracks a period through the billing cycle.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// BillingPeriod is a half-open interval [PeriodStart, PeriodEnd) over which
// usage is integrated for invoicing. StorageSummary is written once per
// calculation; recomputation overwrites rather than accumulates.
type BillingPeriod struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	OwnerID        snowflake.ID   `gorm:"not null;index"`
	PeriodStart    time.Time      `gorm:"not null"`
	PeriodEnd      time.Time      `gorm:"not null"`
	Status         Status         `gorm:"type:text;not null;default:'open';index"`
	StorageSummary datatypes.JSON `gorm:"type:jsonb"`
	CalculatedAt   *time.Time     `gorm:""`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingPeriod) TableName() string { return "billing_periods" }

// StorageSummary is the integrated storage usage for one period.
type StorageSummary struct {
	MBDays           float64 `json:"mb_days"`
	GBMonths         float64 `json:"gb_months"`
	AverageStorageMB float64 `json:"average_storage_mb"`
}

// Encode serializes the summary for storage.
func (s StorageSummary) Encode() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeStorageSummary parses a stored summary; empty blobs decode to nil.
func DecodeStorageSummary(raw datatypes.JSON) (*StorageSummary, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var summary StorageSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

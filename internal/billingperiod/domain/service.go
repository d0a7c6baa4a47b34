package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service integrates artifact-storage usage over billing periods.
type Service interface {
	CalculateStorage(ctx context.Context, periodID snowflake.ID) (*StorageSummary, error)
	FindDueForCalculation(ctx context.Context, limit int) ([]*BillingPeriod, error)
}

var (
	ErrInvalidPeriod  = errors.New("invalid_billing_period")
	ErrPeriodNotFound = errors.New("billing_period_not_found")
)

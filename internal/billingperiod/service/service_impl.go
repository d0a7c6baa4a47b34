package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingperioddomain "github.com/shipyardhq/shipyard/internal/billingperiod/domain"
	"github.com/shipyardhq/shipyard/internal/clock"
	obsmetrics "github.com/shipyardhq/shipyard/internal/observability/metrics"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"github.com/shipyardhq/shipyard/pkg/db/option"
	"github.com/shipyardhq/shipyard/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	periods repository.Repository[billingperioddomain.BillingPeriod]
	usage   repository.Repository[usagedomain.UsageRecord]
	metrics *obsmetrics.Metrics
}

func NewService(p Params) billingperioddomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billingperiod.service"),
		clock:   p.Clock,
		periods: repository.ProvideStore[billingperioddomain.BillingPeriod](p.DB),
		usage:   repository.ProvideStore[usagedomain.UsageRecord](p.DB),
		metrics: p.Metrics,
	}
}

// CalculateStorage integrates the owner's artifact-storage deltas over the
// period and writes the result onto the period row. The integral is a
// running sum over the sparse event series: each segment contributes the
// storage level held across it, in MB-days. Recalculation overwrites the
// previous summary.
func (s *Service) CalculateStorage(ctx context.Context, periodID snowflake.ID) (*billingperioddomain.StorageSummary, error) {
	if periodID == 0 {
		return nil, billingperioddomain.ErrInvalidPeriod
	}

	period, err := s.periods.FindOne(ctx, &billingperioddomain.BillingPeriod{ID: periodID})
	if err != nil {
		return nil, fmt.Errorf("calculate storage: %w", err)
	}
	if period == nil {
		return nil, fmt.Errorf("calculate storage: period %s: %w", periodID, billingperioddomain.ErrPeriodNotFound)
	}

	records, err := s.usage.Find(ctx,
		&usagedomain.UsageRecord{
			OwnerID:   period.OwnerID,
			UsageType: usagedomain.TypeArtifactStorage,
		},
		option.WithTimeRange("recorded_at", period.PeriodStart, period.PeriodEnd),
		option.WithOrder("recorded_at", false),
	)
	if err != nil {
		return nil, fmt.Errorf("calculate storage: %w", err)
	}

	summary := integrateStorage(period.PeriodStart, period.PeriodEnd, records)

	raw, err := summary.Encode()
	if err != nil {
		return nil, fmt.Errorf("calculate storage: %w", err)
	}
	now := s.clock.Now()
	if err := s.periods.Update(ctx, periodID.String(), map[string]any{
		"storage_summary": raw,
		"calculated_at":   now,
		"updated_at":      now,
	}); err != nil {
		return nil, fmt.Errorf("calculate storage: %w", err)
	}

	s.metrics.IncStorageIntegration()
	s.log.Info("billing period storage calculated",
		zap.String("period_id", periodID.String()),
		zap.String("owner_id", period.OwnerID.String()),
		zap.Float64("mb_days", summary.MBDays),
		zap.Int("records", len(records)),
	)
	return &summary, nil
}

// FindDueForCalculation returns closed periods that have not been
// calculated yet, oldest first.
func (s *Service) FindDueForCalculation(ctx context.Context, limit int) ([]*billingperioddomain.BillingPeriod, error) {
	var periods []*billingperioddomain.BillingPeriod
	stmt := s.db.WithContext(ctx).
		Where("status = ? AND calculated_at IS NULL", billingperioddomain.StatusClosed).
		Order("period_end ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

// integrateStorage performs the time-weighted running sum. currentStorage
// tracks the MB level between events; every segment between consecutive
// timestamps contributes level * length-in-days.
func integrateStorage(start, end time.Time, records []*usagedomain.UsageRecord) billingperioddomain.StorageSummary {
	var (
		currentStorage   float64
		totalStorageDays float64
	)
	cursor := start

	for _, record := range records {
		if record == nil {
			continue
		}
		totalStorageDays += currentStorage * daysBetween(cursor, record.RecordedAt)
		currentStorage += record.Quantity
		cursor = record.RecordedAt
	}
	totalStorageDays += currentStorage * daysBetween(cursor, end)

	summary := billingperioddomain.StorageSummary{
		MBDays:   totalStorageDays,
		GBMonths: totalStorageDays / 1024 / 30,
	}
	if periodDays := daysBetween(start, end); periodDays > 0 {
		summary.AverageStorageMB = totalStorageDays / periodDays
	}
	return summary
}

func daysBetween(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	return to.Sub(from).Hours() / 24
}

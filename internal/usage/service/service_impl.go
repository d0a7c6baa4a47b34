package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	artifactdomain "github.com/shipyardhq/shipyard/internal/artifact/domain"
	"github.com/shipyardhq/shipyard/internal/clock"
	obsmetrics "github.com/shipyardhq/shipyard/internal/observability/metrics"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	usagedomain "github.com/shipyardhq/shipyard/internal/usage/domain"
	"github.com/shipyardhq/shipyard/pkg/db/option"
	"github.com/shipyardhq/shipyard/pkg/db/pagination"
	"github.com/shipyardhq/shipyard/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Owners    ownerdomain.Resolver
	Pipelines pipelinedomain.Reader
	Artifacts artifactdomain.Reader
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	owners    ownerdomain.Resolver
	pipelines pipelinedomain.Reader
	artifacts artifactdomain.Reader
	usagerepo repository.Repository[usagedomain.UsageRecord]
	metrics   *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:     p.GenID,
		clock:     p.Clock,
		owners:    p.Owners,
		pipelines: p.Pipelines,
		artifacts: p.Artifacts,
		usagerepo: repository.ProvideStore[usagedomain.UsageRecord](p.DB),
		metrics:   p.Metrics,
	}
}

// RecordUsage appends one ledger record and folds its quantity into the
// owner's summary for the record's period. Both writes happen in a single
// transaction; the owner row is locked so concurrent appends for the same
// owner serialize instead of losing updates.
func (s *Service) RecordUsage(
	ctx context.Context,
	req usagedomain.RecordUsageRequest,
) (*usagedomain.UsageRecord, error) {

	if !req.UsageType.Valid() {
		return nil, usagedomain.ErrInvalidUsageType
	}
	if math.IsNaN(req.Quantity) || math.IsInf(req.Quantity, 0) {
		return nil, usagedomain.ErrInvalidQuantity
	}
	if req.OwnerID == 0 {
		return nil, ownerdomain.ErrInvalidOwner
	}

	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock.Now()
	}

	metadata, err := req.Metadata.Encode()
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	record := &usagedomain.UsageRecord{
		ID:            s.genID.Generate(),
		OwnerID:       req.OwnerID,
		UsageType:     req.UsageType,
		Quantity:      req.Quantity,
		PipelineRunID: req.PipelineRunID,
		ProjectID:     req.ProjectID,
		Metadata:      metadata,
		RecordedAt:    recordedAt.UTC(),
		CreatedAt:     s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := s.owners.ResolveForUpdate(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}

		if err := tx.Create(record).Error; err != nil {
			return err
		}

		owner.Summary.Add(usagedomain.PeriodKey(recordedAt), string(req.UsageType), req.Quantity)
		return s.owners.SaveSummary(ctx, tx, owner)
	})
	if err != nil {
		s.metrics.IncUsageFailure("record_usage")
		return nil, fmt.Errorf("record usage: %w", err)
	}

	s.metrics.IncUsageRecord(string(req.UsageType))
	s.log.Debug("usage recorded",
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("usage_type", string(req.UsageType)),
		zap.Float64("quantity", req.Quantity),
	)
	return record, nil
}

// RecordBuildMinutes bills a completed pipeline run. Duration is rounded up
// to whole minutes with a floor of one minute for any positive duration;
// a zero-length run bills zero.
func (s *Service) RecordBuildMinutes(
	ctx context.Context,
	runID, ownerID snowflake.ID,
) (*usagedomain.UsageRecord, error) {

	run, err := s.pipelines.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("record build minutes: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("record build minutes: run %s: %w", runID, usagedomain.ErrRunNotFound)
	}

	if ownerID == 0 {
		pipeline, err := s.pipelines.GetPipeline(ctx, run.PipelineID)
		if err != nil {
			return nil, fmt.Errorf("record build minutes: %w", err)
		}
		if pipeline == nil {
			return nil, fmt.Errorf("record build minutes: pipeline %s: %w", run.PipelineID, pipelinedomain.ErrInvalidPipeline)
		}
		ownerID = pipeline.OwnerID
	}

	completedAt := s.clock.Now()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	record, err := s.RecordUsage(ctx, usagedomain.RecordUsageRequest{
		OwnerID:       ownerID,
		UsageType:     usagedomain.TypeBuildMinutes,
		Quantity:      billableMinutes(run.StartedAt, completedAt),
		PipelineRunID: runID,
		ProjectID:     run.ProjectID,
		Metadata:      usagedomain.Metadata{Source: "pipeline_run_completed"},
		RecordedAt:    completedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record build minutes: %w", err)
	}
	return record, nil
}

// RecordArtifactStorage appends a signed storage delta for an artifact
// lifecycle event: +size on create, -size on delete.
func (s *Service) RecordArtifactStorage(
	ctx context.Context,
	artifactID snowflake.ID,
	action usagedomain.ArtifactAction,
) error {

	if action != usagedomain.ArtifactActionCreated && action != usagedomain.ArtifactActionDeleted {
		return usagedomain.ErrInvalidAction
	}

	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("record artifact storage: %w", err)
	}
	if artifact == nil {
		return fmt.Errorf("record artifact storage: artifact %s: %w", artifactID, usagedomain.ErrArtifactNotFound)
	}

	quantity := artifact.SizeMB
	if action == usagedomain.ArtifactActionDeleted {
		quantity = -quantity
	}

	_, err = s.RecordUsage(ctx, usagedomain.RecordUsageRequest{
		OwnerID:       artifact.OwnerID,
		UsageType:     usagedomain.TypeArtifactStorage,
		Quantity:      quantity,
		PipelineRunID: artifact.PipelineRunID,
		ProjectID:     artifact.ProjectID,
		Metadata: usagedomain.Metadata{
			Source:     "artifact_lifecycle",
			Action:     string(action),
			ArtifactID: artifactID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("record artifact storage: %w", err)
	}
	return nil
}

// GetUsageSummary reads the current-month totals for an owner. Build
// minutes come from the cached summary, which is updated in the same
// transaction as every ledger append. Current storage is always recomputed
// from the ledger: it is a lifetime running sum of signed deltas, not a
// per-period figure, so the summary bucket cannot answer it.
func (s *Service) GetUsageSummary(ctx context.Context, ownerID snowflake.ID) (usagedomain.SummaryResponse, error) {
	owner, err := s.owners.Resolve(ctx, ownerID)
	if err != nil {
		return usagedomain.SummaryResponse{}, fmt.Errorf("get usage summary: %w", err)
	}

	period := usagedomain.PeriodKey(s.clock.Now())
	buildMinutes := owner.Summary.Total(period, string(usagedomain.TypeBuildMinutes))

	storageMB, err := s.currentStorageMB(ctx, ownerID)
	if err != nil {
		return usagedomain.SummaryResponse{}, fmt.Errorf("get usage summary: %w", err)
	}

	return usagedomain.SummaryResponse{
		CurrentMonth: usagedomain.CurrentMonthSummary{
			BuildMinutes: buildMinutes,
			StorageGB:    storageMB / 1024,
		},
	}, nil
}

func (s *Service) List(ctx context.Context, req usagedomain.ListUsageRequest) (usagedomain.ListUsageResponse, error) {
	if req.OwnerID == 0 {
		return usagedomain.ListUsageResponse{}, ownerdomain.ErrInvalidOwner
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := &usagedomain.UsageRecord{OwnerID: req.OwnerID}
	if req.UsageType != "" {
		if !req.UsageType.Valid() {
			return usagedomain.ListUsageResponse{}, usagedomain.ErrInvalidUsageType
		}
		filter.UsageType = req.UsageType
	}

	items, err := s.usagerepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
	)
	if err != nil {
		return usagedomain.ListUsageResponse{}, err
	}
	return buildListResponse(items, pageSize), nil
}

func (s *Service) currentStorageMB(ctx context.Context, ownerID snowflake.ID) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&usagedomain.UsageRecord{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("owner_id = ? AND usage_type = ?", ownerID, usagedomain.TypeArtifactStorage).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// billableMinutes rounds a run duration up to whole minutes. Any positive
// duration bills at least one minute; a zero or negative duration bills 0.
func billableMinutes(startedAt, completedAt time.Time) float64 {
	duration := completedAt.Sub(startedAt)
	if duration <= 0 {
		return 0
	}
	minutes := math.Ceil(duration.Minutes())
	if minutes < 1 {
		return 1
	}
	return minutes
}

func buildListResponse(items []*usagedomain.UsageRecord, pageSize int) usagedomain.ListUsageResponse {
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *usagedomain.UsageRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:         record.ID.String(),
			RecordedAt: record.RecordedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]usagedomain.UsageRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	return usagedomain.ListUsageResponse{
		PageInfo:     *pageInfo,
		UsageRecords: records,
	}
}

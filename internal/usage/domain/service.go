package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shipyardhq/shipyard/pkg/db/pagination"
)

// ArtifactAction is the lifecycle transition that produced a storage delta.
type ArtifactAction string

const (
	ArtifactActionCreated ArtifactAction = "created"
	ArtifactActionDeleted ArtifactAction = "deleted"
)

type RecordUsageRequest struct {
	OwnerID       snowflake.ID
	UsageType     Type
	Quantity      float64
	PipelineRunID snowflake.ID
	ProjectID     snowflake.ID
	Metadata      Metadata
	RecordedAt    time.Time
}

// CurrentMonthSummary is the quota-check view of an owner's usage.
type CurrentMonthSummary struct {
	BuildMinutes float64 `json:"build_minutes"`
	StorageGB    float64 `json:"storage_gb"`
}

type SummaryResponse struct {
	CurrentMonth CurrentMonthSummary `json:"current_month"`
}

type ListUsageRequest struct {
	OwnerID   snowflake.ID
	UsageType Type
	PageToken string
	PageSize  int
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageRecords []UsageRecord `json:"usage_records"`
}

type Service interface {
	RecordUsage(ctx context.Context, req RecordUsageRequest) (*UsageRecord, error)
	RecordBuildMinutes(ctx context.Context, runID, ownerID snowflake.ID) (*UsageRecord, error)
	RecordArtifactStorage(ctx context.Context, artifactID snowflake.ID, action ArtifactAction) error
	GetUsageSummary(ctx context.Context, ownerID snowflake.ID) (SummaryResponse, error)
	List(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
}

var (
	ErrInvalidUsageType = errors.New("invalid_usage_type")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidAction    = errors.New("invalid_artifact_action")
	ErrRunNotFound      = errors.New("pipeline_run_not_found")
	ErrArtifactNotFound = errors.New("artifact_not_found")
)

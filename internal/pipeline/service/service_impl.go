package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pipelinedomain "github.com/shipyardhq/shipyard/internal/pipeline/domain"
	"github.com/shipyardhq/shipyard/pkg/db/option"
	"github.com/shipyardhq/shipyard/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB *gorm.DB
}

type Service struct {
	pipelines repository.Repository[pipelinedomain.Pipeline]
	runs      repository.Repository[pipelinedomain.PipelineRun]
}

func NewService(p Params) pipelinedomain.Reader {
	return &Service{
		pipelines: repository.ProvideStore[pipelinedomain.Pipeline](p.DB),
		runs:      repository.ProvideStore[pipelinedomain.PipelineRun](p.DB),
	}
}

func (s *Service) GetRun(ctx context.Context, id snowflake.ID) (*pipelinedomain.PipelineRun, error) {
	if id == 0 {
		return nil, pipelinedomain.ErrInvalidPipeline
	}
	return s.runs.FindOne(ctx, &pipelinedomain.PipelineRun{ID: id})
}

func (s *Service) GetPipeline(ctx context.Context, id snowflake.ID) (*pipelinedomain.Pipeline, error) {
	if id == 0 {
		return nil, pipelinedomain.ErrInvalidPipeline
	}
	return s.pipelines.FindOne(ctx, &pipelinedomain.Pipeline{ID: id})
}

func (s *Service) LatestRun(ctx context.Context, pipelineID snowflake.ID) (*pipelinedomain.PipelineRun, error) {
	if pipelineID == 0 {
		return nil, pipelinedomain.ErrInvalidPipeline
	}
	return s.runs.FindOne(ctx,
		&pipelinedomain.PipelineRun{PipelineID: pipelineID},
		option.WithOrder("started_at", true),
	)
}

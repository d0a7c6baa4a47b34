package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Reader exposes pipeline and run lookups to the metering and recovery
// subsystems. Lookups return (nil, nil) when the record does not exist.
type Reader interface {
	GetRun(ctx context.Context, id snowflake.ID) (*PipelineRun, error)
	GetPipeline(ctx context.Context, id snowflake.ID) (*Pipeline, error)
	LatestRun(ctx context.Context, pipelineID snowflake.ID) (*PipelineRun, error)
}

var ErrInvalidPipeline = errors.New("invalid_pipeline")

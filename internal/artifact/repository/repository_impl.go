package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	artifactdomain "github.com/shipyardhq/shipyard/internal/artifact/domain"
	"github.com/shipyardhq/shipyard/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB *gorm.DB
}

type Repository struct {
	store repository.Repository[artifactdomain.Artifact]
}

func NewRepository(p Params) artifactdomain.Reader {
	return &Repository{store: repository.ProvideStore[artifactdomain.Artifact](p.DB)}
}

func (r *Repository) GetByID(ctx context.Context, id snowflake.ID) (*artifactdomain.Artifact, error) {
	if id == 0 {
		return nil, artifactdomain.ErrInvalidArtifact
	}
	return r.store.FindOne(ctx, &artifactdomain.Artifact{ID: id})
}

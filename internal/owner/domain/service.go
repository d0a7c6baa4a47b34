package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Resolver confirms owner existence and exposes the usage-summary blob.
// ResolveForUpdate and SaveSummary run inside a caller-owned transaction so
// ledger appends and summary updates stay atomic.
type Resolver interface {
	Resolve(ctx context.Context, id snowflake.ID) (*Owner, error)
	ResolveForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Owner, error)
	SaveSummary(ctx context.Context, tx *gorm.DB, owner *Owner) error
}

var (
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrOwnerNotFound = errors.New("owner_not_found")
)

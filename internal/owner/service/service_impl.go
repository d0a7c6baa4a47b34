package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ownerdomain "github.com/shipyardhq/shipyard/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service resolves owner ids against the organizations and users tables,
// organizations first.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) ownerdomain.Resolver {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("owner.service"),
	}
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID) (*ownerdomain.Owner, error) {
	return s.resolve(ctx, s.db, id, false)
}

func (s *Service) ResolveForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*ownerdomain.Owner, error) {
	return s.resolve(ctx, tx, id, true)
}

func (s *Service) resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*ownerdomain.Owner, error) {
	if id == 0 {
		return nil, ownerdomain.ErrInvalidOwner
	}

	stmt := db.WithContext(ctx)
	if lock && supportsRowLocking(db) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var org ownerdomain.Organization
	err := stmt.Where("id = ?", id).First(&org).Error
	if err == nil {
		summary, err := ownerdomain.DecodeSummary(org.UsageSummary)
		if err != nil {
			return nil, fmt.Errorf("decode organization %s usage summary: %w", id, err)
		}
		return &ownerdomain.Owner{ID: org.ID, Kind: ownerdomain.KindOrganization, Summary: summary}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var user ownerdomain.User
	err = stmt.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("owner %s: %w", id, ownerdomain.ErrOwnerNotFound)
		}
		return nil, err
	}
	summary, err := ownerdomain.DecodeSummary(user.UsageSummary)
	if err != nil {
		return nil, fmt.Errorf("decode user %s usage summary: %w", id, err)
	}
	return &ownerdomain.Owner{ID: user.ID, Kind: ownerdomain.KindUser, Summary: summary}, nil
}

func (s *Service) SaveSummary(ctx context.Context, tx *gorm.DB, owner *ownerdomain.Owner) error {
	if owner == nil || owner.ID == 0 {
		return ownerdomain.ErrInvalidOwner
	}
	raw, err := ownerdomain.EncodeSummary(owner.Summary)
	if err != nil {
		return fmt.Errorf("encode owner %s usage summary: %w", owner.ID, err)
	}

	table := "users"
	if owner.Kind == ownerdomain.KindOrganization {
		table = "organizations"
	}
	result := tx.WithContext(ctx).Table(table).Where("id = ?", owner.ID).Updates(map[string]any{
		"usage_summary": raw,
		"updated_at":    time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("owner %s: %w", owner.ID, ownerdomain.ErrOwnerNotFound)
	}
	return nil
}

func supportsRowLocking(db *gorm.DB) bool {
	return !strings.EqualFold(db.Dialector.Name(), "sqlite")
}

// Package option provides composable query modifiers for the generic store.
package option

import (
	"fmt"
	"time"

	"github.com/shipyardhq/shipyard/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// WithOrder sorts by the given column. Column names are caller-controlled
// constants, never user input.
func WithOrder(column string, desc bool) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		direction := "ASC"
		if desc {
			direction = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

// WithTimeRange restricts column to the closed interval [from, to].
// A zero bound is left open.
func WithTimeRange(column string, from, to time.Time) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if !from.IsZero() {
			db = db.Where(fmt.Sprintf("%s >= ?", column), from)
		}
		if !to.IsZero() {
			db = db.Where(fmt.Sprintf("%s <= ?", column), to)
		}
		return db
	})
}

// ApplyPagination applies cursor pagination: rows after the cursor,
// limited to page size + 1 so the caller can detect another page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if p.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(p.PageToken); err == nil && cursor.ID != "" {
				db = db.Where("id < ?", cursor.ID)
			}
		}
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		return db.Order("id DESC").Limit(size + 1)
	})
}

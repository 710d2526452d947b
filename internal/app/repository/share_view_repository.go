package repository

import (
	"context"

	"github.com/myglasscase/glasscase/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShareViewRepository defines the data access contract for share view events.
type ShareViewRepository interface {
	Create(ctx context.Context, event *model.ShareViewEvent) error
}

type shareViewRepository struct {
	db *gorm.DB
}

// NewShareViewRepository returns a GORM-backed ShareViewRepository.
func NewShareViewRepository(db *gorm.DB) ShareViewRepository {
	return &shareViewRepository{db: db}
}

// Create stores the event; a redelivered event with a known id is ignored.
func (r *shareViewRepository) Create(ctx context.Context, event *model.ShareViewEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}


package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"gorm.io/gorm"
)

// EbayListingRepository stores the listings created through the Trading API.
type EbayListingRepository interface {
	Create(ctx context.Context, listing *model.EbayListing) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error)
}

type ebayListingRepository struct {
	db *gorm.DB
}

// NewEbayListingRepository returns a GORM-backed EbayListingRepository.
func NewEbayListingRepository(db *gorm.DB) EbayListingRepository {
	return &ebayListingRepository{db: db}
}

func (r *ebayListingRepository) Create(ctx context.Context, listing *model.EbayListing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

// ListByUser returns the user's listings newest first.
func (r *ebayListingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.EbayListing, error) {
	var listings []model.EbayListing
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"gorm.io/gorm"
)

// ErrItemNotFound is returned when no live item with that id belongs to the owner.
var ErrItemNotFound = errors.New("inventory item not found")

// InventoryItemRepository reads the owner's catalogued items.
type InventoryItemRepository interface {
	ListLiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.InventoryItem, error)
	GetLiveByOwner(ctx context.Context, ownerID, itemID uuid.UUID) (*model.InventoryItem, error)
}

type inventoryItemRepository struct {
	db *gorm.DB
}

// NewInventoryItemRepository returns a GORM-backed InventoryItemRepository.
func NewInventoryItemRepository(db *gorm.DB) InventoryItemRepository {
	return &inventoryItemRepository{db: db}
}

// ListLiveByOwner returns items that are not soft-deleted, most recent first.
func (r *inventoryItemRepository) ListLiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Where("deleted IS NULL OR deleted = ?", 0).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *inventoryItemRepository) GetLiveByOwner(ctx context.Context, ownerID, itemID uuid.UUID) (*model.InventoryItem, error) {
	var item model.InventoryItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, ownerID).
		Where("deleted IS NULL OR deleted = ?", 0).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

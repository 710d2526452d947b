package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrShareLinkNotFound signals that the requested share link does not exist.
	ErrShareLinkNotFound = errors.New("share link not found")
)

const shareIDBatchSize = 1000

// ShareLinkRepository defines the data access contract for share links.
type ShareLinkRepository interface {
	Create(ctx context.Context, link *model.ShareLink) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ShareLink, error)
	GetByShareID(ctx context.Context, uniqueShareID string) (*model.ShareLink, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error)
	Update(ctx context.Context, link *model.ShareLink) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	EachShareID(ctx context.Context, fn func(ids []string) error) error
}

type shareLinkRepository struct {
	db *gorm.DB
}

// NewShareLinkRepository returns a GORM-backed ShareLinkRepository.
func NewShareLinkRepository(db *gorm.DB) ShareLinkRepository {
	return &shareLinkRepository{db: db}
}

func (r *shareLinkRepository) Create(ctx context.Context, link *model.ShareLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

func (r *shareLinkRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ShareLink, error) {
	var link model.ShareLink
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *shareLinkRepository) GetByShareID(ctx context.Context, uniqueShareID string) (*model.ShareLink, error) {
	var link model.ShareLink
	if err := r.db.WithContext(ctx).Where("unique_share_id = ?", uniqueShareID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShareLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// ListByOwner returns the owner's links newest first, each with its recorded view count.
func (r *shareLinkRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.ShareLink, error) {
	var result []model.ShareLink
	if err := r.db.WithContext(ctx).
		Model(&model.ShareLink{}).
		Select("share_links.*, (SELECT COUNT(*) FROM share_view_events v WHERE v.share_link_id = share_links.id) AS view_count").
		Where("share_links.user_id = ?", ownerID).
		Order("share_links.created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

// Update writes the mutable fields of link. The write is scoped to the link's owner.
func (r *shareLinkRepository) Update(ctx context.Context, link *model.ShareLink) error {
	result := r.db.WithContext(ctx).
		Model(&model.ShareLink{}).
		Where("id = ? AND user_id = ?", link.ID, link.UserID).
		Updates(map[string]interface{}{
			"is_active":  link.IsActive,
			"settings":   link.Settings,
			"expires_at": link.ExpiresAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrShareLinkNotFound
	}

	return r.db.WithContext(ctx).Where("id = ?", link.ID).First(link).Error
}

// Delete removes the link and its view history.
func (r *shareLinkRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&model.ShareLink{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrShareLinkNotFound
		}
		return tx.Where("share_link_id = ?", id).Delete(&model.ShareViewEvent{}).Error
	})
}

// EachShareID streams every stored public token to fn in batches.
func (r *shareLinkRepository) EachShareID(ctx context.Context, fn func(ids []string) error) error {
	var batch []model.ShareLink
	return r.db.WithContext(ctx).
		Select("id", "unique_share_id").
		FindInBatches(&batch, shareIDBatchSize, func(tx *gorm.DB, _ int) error {
			ids := make([]string, 0, len(batch))
			for _, l := range batch {
				ids = append(ids, l.UniqueShareID)
			}
			return fn(ids)
		}).Error
}

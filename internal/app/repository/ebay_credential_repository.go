package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/myglasscase/glasscase/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCredentialNotFound signals that the user has not connected an eBay account.
var ErrCredentialNotFound = errors.New("ebay credential not found")

// EbayCredentialRepository defines the data access contract for eBay tokens.
type EbayCredentialRepository interface {
	Upsert(ctx context.Context, cred *model.EbayCredential) error
	GetByUser(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error)
	UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	ListExpiringBefore(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error)
	MarkRefreshFailed(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type ebayCredentialRepository struct {
	db *gorm.DB
}

// NewEbayCredentialRepository returns a GORM-backed EbayCredentialRepository.
func NewEbayCredentialRepository(db *gorm.DB) EbayCredentialRepository {
	return &ebayCredentialRepository{db: db}
}

// Upsert inserts the credential or replaces the tokens of the user's existing row.
func (r *ebayCredentialRepository) Upsert(ctx context.Context, cred *model.EbayCredential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "refresh_failed_at", "updated_at"}),
		}).
		Create(cred).Error
}

func (r *ebayCredentialRepository) GetByUser(ctx context.Context, userID uuid.UUID) (*model.EbayCredential, error) {
	var cred model.EbayCredential
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *ebayCredentialRepository) UpdateTokens(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.EbayCredential{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"access_token":      accessToken,
			"refresh_token":     refreshToken,
			"expires_at":        expiresAt,
			"refresh_failed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *ebayCredentialRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.EbayCredential{}).Error
}

// ListExpiringBefore returns credentials whose access token lapses before the
// given time, soonest first. Rows whose last refresh failed at or after
// retryFailedBefore are left out so they cannot crowd out healthy ones.
func (r *ebayCredentialRepository) ListExpiringBefore(ctx context.Context, before, retryFailedBefore time.Time, limit int) ([]model.EbayCredential, error) {
	if limit <= 0 {
		limit = 100
	}

	var result []model.EbayCredential
	if err := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Where("refresh_failed_at IS NULL OR refresh_failed_at < ?", retryFailedBefore).
		Order("expires_at ASC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ebayCredentialRepository) MarkRefreshFailed(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.EbayCredential{}).
		Where("user_id = ?", userID).
		Update("refresh_failed_at", at).Error
}

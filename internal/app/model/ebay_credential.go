package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EbayCredential stores one user's eBay OAuth tokens.
type EbayCredential struct {
	ID           uuid.UUID `db:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `db:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	AccessToken  string    `db:"access_token" gorm:"type:text;not null"`
	RefreshToken string    `db:"refresh_token" gorm:"type:text;not null"`
	ExpiresAt    time.Time `db:"expires_at" gorm:"not null;index"`
	CreatedAt    time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `db:"updated_at" gorm:"autoUpdateTime"`

	// RefreshFailedAt is set when a background refresh was rejected and
	// cleared whenever new tokens are stored.
	RefreshFailedAt *time.Time `db:"refresh_failed_at" gorm:"index"`
}

func (c *EbayCredential) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Connected reports whether the access token is still usable at now.
func (c *EbayCredential) Connected(now time.Time) bool {
	return c.ExpiresAt.After(now)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// ShareViewEvent records one successful anonymous view of a shared collection.
type ShareViewEvent struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ShareLinkID   uuid.UUID `json:"share_link_id" gorm:"type:uuid;not null;index"`
	UniqueShareID string    `json:"unique_share_id" gorm:"size:64;not null"`
	IPHash        string    `json:"ip_hash" gorm:"size:64"`
	UserAgent     string    `json:"user_agent" gorm:"type:text"`
	ViewedAt      time.Time `json:"viewed_at" gorm:"not null;index"`
}

const (
	ShareViewStreamName     = "SHARE_VIEWS"
	ShareViewStreamSubject  = "shares.views"
	ShareViewConsumerName   = "share-view-recorder"
	ShareViewStreamMaxBytes = 1024 * 1024 * 100 // 100MB
	ShareViewStreamMaxAge   = 90 * 24 * time.Hour
)

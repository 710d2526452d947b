package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing types as named by the eBay Trading API.
const (
	ListingTypeFixedPrice = "FixedPriceItem"
	ListingTypeAuction    = "Chinese"
)

// EbayListingStatusActive marks a listing eBay accepted.
const EbayListingStatusActive = "active"

// EbayListing records an inventory item listed on eBay by its owner.
type EbayListing struct {
	ID              uuid.UUID `db:"id" gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `db:"user_id" gorm:"type:uuid;not null;index"`
	InventoryItemID uuid.UUID `db:"inventory_item_id" gorm:"type:uuid;not null;index"`
	EbayItemID      string    `db:"ebay_listing_id" gorm:"column:ebay_listing_id;size:32;not null;uniqueIndex"`
	ListingURL      string    `db:"listing_url" gorm:"type:text;not null"`
	ListingType     string    `db:"listing_type" gorm:"size:16;not null"`
	Title           string    `db:"title" gorm:"type:text;not null"`
	StartPrice      float64   `db:"start_price" gorm:"type:numeric(12,2);not null"`
	BuyItNowPrice   *float64  `db:"buy_it_now_price" gorm:"type:numeric(12,2)"`
	Status          string    `db:"status" gorm:"size:16;not null;default:active"`
	CreatedAt       time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}

func (l *EbayListing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

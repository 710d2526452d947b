package model

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is a catalogued piece in an owner's collection.
type InventoryItem struct {
	ID               uuid.UUID  `db:"id" gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID  `db:"user_id" gorm:"type:uuid;not null;index"`
	Name             string     `db:"name" gorm:"type:text;not null"`
	Category         *string    `db:"category" gorm:"type:text"`
	Subcategory      *string    `db:"subcategory" gorm:"type:text"`
	Manufacturer     *string    `db:"manufacturer" gorm:"type:text"`
	Pattern          *string    `db:"pattern" gorm:"type:text"`
	YearManufactured *int       `db:"year_manufactured"`
	CurrentValue     *float64   `db:"current_value" gorm:"type:numeric(12,2)"`
	Condition        *string    `db:"condition" gorm:"type:text"`
	PhotoURL         *string    `db:"photo_url" gorm:"type:text"`
	Quantity         *int       `db:"quantity" gorm:"default:1"`
	PurchasePrice    *float64   `db:"purchase_price" gorm:"type:numeric(12,2)"`
	PurchaseDate     *time.Time `db:"purchase_date" gorm:"type:date"`
	Location         *string    `db:"location" gorm:"type:text"`
	Description      *string    `db:"description" gorm:"type:text"`
	CreatedAt        time.Time  `db:"created_at" gorm:"autoCreateTime;index"`
	// Deleted is the soft-delete marker; NULL or 0 means the item is live.
	Deleted *int `db:"deleted" gorm:"column:deleted"`
}

// Live reports whether the item has not been soft-deleted.
func (i *InventoryItem) Live() bool {
	return i.Deleted == nil || *i.Deleted == 0
}

const purchaseDateLayout = "2006-01-02"

// PublicItem is the projection of an InventoryItem that may be shown to an
// anonymous viewer. The conditional fields are omitted from JSON when nil.
type PublicItem struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Category         *string   `json:"category"`
	Subcategory      *string   `json:"subcategory"`
	Manufacturer     *string   `json:"manufacturer"`
	Pattern          *string   `json:"pattern"`
	YearManufactured *int      `json:"year_manufactured"`
	CurrentValue     *float64  `json:"current_value"`
	Condition        *string   `json:"condition"`
	PhotoURL         *string   `json:"photo_url"`
	Quantity         *int      `json:"quantity"`
	CreatedAt        time.Time `json:"created_at"`

	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	PurchaseDate  *string  `json:"purchase_date,omitempty"`
	Location      *string  `json:"location,omitempty"`
	Description   *string  `json:"description,omitempty"`
}

// Public copies every field that a share could ever expose; redaction is applied separately.
func (i *InventoryItem) Public() PublicItem {
	p := PublicItem{
		ID:               i.ID,
		Name:             i.Name,
		Category:         cloneString(i.Category),
		Subcategory:      cloneString(i.Subcategory),
		Manufacturer:     cloneString(i.Manufacturer),
		Pattern:          cloneString(i.Pattern),
		YearManufactured: cloneInt(i.YearManufactured),
		CurrentValue:     cloneFloat(i.CurrentValue),
		Condition:        cloneString(i.Condition),
		PhotoURL:         cloneString(i.PhotoURL),
		Quantity:         cloneInt(i.Quantity),
		CreatedAt:        i.CreatedAt,
		PurchasePrice:    cloneFloat(i.PurchasePrice),
		Location:         cloneString(i.Location),
		Description:      cloneString(i.Description),
	}
	if i.PurchaseDate != nil {
		d := i.PurchaseDate.Format(purchaseDateLayout)
		p.PurchaseDate = &d
	}
	return p
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

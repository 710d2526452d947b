package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShareLink grants anonymous read access to a redacted view of one owner's collection.
type ShareLink struct {
	ID            uuid.UUID          `db:"id" gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID          `db:"user_id" gorm:"type:uuid;not null;index"`
	UniqueShareID string             `db:"unique_share_id" gorm:"size:64;not null;uniqueIndex"`
	Settings      VisibilitySettings `db:"settings" gorm:"type:jsonb;not null"`
	IsActive      bool               `db:"is_active" gorm:"not null;default:true"`
	ExpiresAt     *time.Time         `db:"expires_at" gorm:"index"`
	CreatedAt     time.Time          `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time          `db:"updated_at" gorm:"autoUpdateTime"`

	// ViewCount is filled by listing queries; it is not a column.
	ViewCount int64 `db:"-" gorm:"->;-:migration"`
}

func (l *ShareLink) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the link carries an expiry that is before now.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// VisibilitySettings holds the owner's redaction flags. A nil flag means
// "not specified" and resolves to its policy default in Effective.
type VisibilitySettings struct {
	HidePurchasePrice *bool `json:"hide_purchase_price,omitempty"`
	HidePurchaseDate  *bool `json:"hide_purchase_date,omitempty"`
	HideLocation      *bool `json:"hide_location,omitempty"`
	HideDescription   *bool `json:"hide_description,omitempty"`
}

// Value stores the settings as a JSON document.
func (s VisibilitySettings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON document; NULL leaves every flag unspecified.
func (s *VisibilitySettings) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = VisibilitySettings{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("visibility settings: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*s = VisibilitySettings{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

// Visibility is the fully resolved form of VisibilitySettings.
type Visibility struct {
	HidePurchasePrice bool
	HidePurchaseDate  bool
	HideLocation      bool
	HideDescription   bool
}

// DefaultVisibility is applied flag by flag wherever a setting is absent.
var DefaultVisibility = Visibility{
	HidePurchasePrice: true,
	HidePurchaseDate:  false,
	HideLocation:      false,
	HideDescription:   false,
}

// Effective resolves every flag, substituting DefaultVisibility for absent ones.
func (s VisibilitySettings) Effective() Visibility {
	return Visibility{
		HidePurchasePrice: flagOr(s.HidePurchasePrice, DefaultVisibility.HidePurchasePrice),
		HidePurchaseDate:  flagOr(s.HidePurchaseDate, DefaultVisibility.HidePurchaseDate),
		HideLocation:      flagOr(s.HideLocation, DefaultVisibility.HideLocation),
		HideDescription:   flagOr(s.HideDescription, DefaultVisibility.HideDescription),
	}
}

// Merge overlays the flags present in patch onto s.
func (s VisibilitySettings) Merge(patch VisibilitySettings) VisibilitySettings {
	out := s
	if patch.HidePurchasePrice != nil {
		out.HidePurchasePrice = boolPtr(*patch.HidePurchasePrice)
	}
	if patch.HidePurchaseDate != nil {
		out.HidePurchaseDate = boolPtr(*patch.HidePurchaseDate)
	}
	if patch.HideLocation != nil {
		out.HideLocation = boolPtr(*patch.HideLocation)
	}
	if patch.HideDescription != nil {
		out.HideDescription = boolPtr(*patch.HideDescription)
	}
	return out
}

// Explicit returns settings with every flag set to its effective value.
func (v Visibility) Explicit() VisibilitySettings {
	return VisibilitySettings{
		HidePurchasePrice: boolPtr(v.HidePurchasePrice),
		HidePurchaseDate:  boolPtr(v.HidePurchaseDate),
		HideLocation:      boolPtr(v.HideLocation),
		HideDescription:   boolPtr(v.HideDescription),
	}
}

func flagOr(flag *bool, fallback bool) bool {
	if flag == nil {
		return fallback
	}
	return *flag
}

func boolPtr(b bool) *bool {
	return &b
}

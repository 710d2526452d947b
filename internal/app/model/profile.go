package model

import "github.com/google/uuid"

// Profile is the owner's public-facing identity. Email is never read by this service.
type Profile struct {
	ID       uuid.UUID `db:"id" gorm:"type:uuid;primaryKey"`
	FullName *string   `db:"full_name" gorm:"type:text"`
	Email    *string   `db:"email" gorm:"type:text"`
}

// AnonymousCollector labels a shared collection whose owner has no usable display name.
const AnonymousCollector = "Anonymous Collector"

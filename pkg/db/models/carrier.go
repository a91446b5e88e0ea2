package models

import (
	"time"

	"github.com/google/uuid"
)

// Carrier is a read-side master row managed by an external system. Only the
// columns the auction surface needs are mapped here.
type Carrier struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	ContactEmail string    `gorm:"column:contact_email;not null"`
	ContactPhone *string   `gorm:"column:contact_phone"`
	AllowedToBid bool      `gorm:"column:allowed_to_bid;not null;default:true"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/pkg/enums"
)

// AssignmentEvent is one entry in an assignment's append-only history.
type AssignmentEvent struct {
	Kind      enums.AssignmentEventKind `json:"kind"`
	Resource  string                    `json:"resource,omitempty"`
	Reason    string                    `json:"reason,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

// AssignmentHistory is stored as a jsonb array on the assignment row.
type AssignmentHistory []AssignmentEvent

// Assignment ties a carrier to a load for some number of vehicles at an
// agreed price. One row per (load, carrier); unassignment deactivates the
// row and appends a history event rather than deleting it.
type Assignment struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LoadID    uuid.UUID `gorm:"column:load_id;type:uuid;not null;uniqueIndex:ux_assignments_load_carrier"`
	CarrierID uuid.UUID `gorm:"column:carrier_id;type:uuid;not null;uniqueIndex:ux_assignments_load_carrier"`

	VehicleCount     int             `gorm:"column:vehicle_count;not null"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	PriceDiffPercent decimal.Decimal `gorm:"column:price_diff_percent;type:numeric(6,2);not null;default:0"`
	BidPosition      string          `gorm:"column:bid_position;not null;default:''"`

	// Price-match negotiation. IsPMRApproved is tri-state: nil while the
	// request is open, true/false once the carrier (or arbiter) resolves it.
	PMRPrice            *decimal.Decimal `gorm:"column:pmr_price;type:numeric(12,2)"`
	PMRComment          *string          `gorm:"column:pmr_comment"`
	IsPMRApproved       *bool            `gorm:"column:is_pmr_approved"`
	NegotiatedByArbiter bool             `gorm:"column:negotiated_by_arbiter;not null;default:false"`

	IsAssigned bool              `gorm:"column:is_assigned;not null;default:true"`
	IsActive   bool              `gorm:"column:is_active;not null;default:true"`
	History    AssignmentHistory `gorm:"column:history;type:jsonb;serializer:json"`

	CreatedBy uuid.UUID  `gorm:"column:created_by;type:uuid;not null"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

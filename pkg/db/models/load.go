package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/pkg/enums"
)

// Load is a freight posting that runs through the reverse auction lifecycle.
// Loads are soft-deactivated, never deleted.
type Load struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShipperID       uuid.UUID            `gorm:"column:shipper_id;type:uuid;not null"`
	ReferenceNumber string               `gorm:"column:reference_number;not null"`
	OriginCity      string               `gorm:"column:origin_city;not null"`
	DestinationCity string               `gorm:"column:destination_city;not null"`
	Commodity       *string              `gorm:"column:commodity"`
	Status          enums.LoadStatus     `gorm:"column:status;type:load_status;not null;default:'draft'"`
	Visibility      enums.LoadVisibility `gorm:"column:visibility;type:load_visibility;not null;default:'open_market'"`

	// Auction parameters.
	BasePrice            decimal.Decimal     `gorm:"column:base_price;type:numeric(12,2);not null"`
	DecrementKind        enums.DecrementKind `gorm:"column:decrement_kind;type:decrement_kind;not null;default:'absolute'"`
	DecrementValue       decimal.Decimal     `gorm:"column:decrement_value;type:numeric(12,2);not null"`
	ShowLowestToCarriers bool                `gorm:"column:show_lowest_to_carriers;not null;default:false"`
	MaxAttempts          int                 `gorm:"column:max_attempts;not null;default:3"`

	// Capacity. IsSplit is maintained by the assignment engine and reports
	// whether more than one carrier currently holds part of the load.
	VehicleCount int  `gorm:"column:vehicle_count;not null;default:1"`
	AllowSplit   bool `gorm:"column:allow_split;not null;default:false"`
	IsSplit      bool `gorm:"column:is_split;not null;default:false"`

	// Bid window. BidEndTime moves forward when late bids extend the
	// auction; ExtendedMinutes accumulates the total extension granted.
	BidStartTime    time.Time `gorm:"column:bid_start_time;not null"`
	BidEndTime      time.Time `gorm:"column:bid_end_time;not null"`
	ExtendedMinutes int       `gorm:"column:extended_minutes;not null;default:0"`

	CancellationReason *string `gorm:"column:cancellation_reason"`
	CompletionReason   *string `gorm:"column:completion_reason"`

	IsActive  bool       `gorm:"column:is_active;not null;default:true"`
	CreatedBy uuid.UUID  `gorm:"column:created_by;type:uuid;not null"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

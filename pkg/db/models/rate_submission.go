package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateSubmission is one immutable row in the durable rate ledger. Rows are
// only ever appended; corrections happen by submitting again.
type RateSubmission struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LoadID        uuid.UUID       `gorm:"column:load_id;type:uuid;not null;uniqueIndex:ux_rate_submissions_load_carrier_attempt"`
	CarrierID     uuid.UUID       `gorm:"column:carrier_id;type:uuid;not null;uniqueIndex:ux_rate_submissions_load_carrier_attempt"`
	Rate          decimal.Decimal `gorm:"column:rate;type:numeric(12,2);not null"`
	Comment       *string         `gorm:"column:comment"`
	AttemptNumber int             `gorm:"column:attempt_number;not null;uniqueIndex:ux_rate_submissions_load_carrier_attempt"`
	SubmittedBy   uuid.UUID       `gorm:"column:submitted_by;type:uuid;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

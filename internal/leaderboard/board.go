package leaderboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is one carrier's current standing on a load. Position is the 0-based
// rank within the snapshot; nil means the rank is withheld from the viewer.
type Entry struct {
	CarrierID      uuid.UUID       `json:"carrierId"`
	CarrierName    string          `json:"carrierName,omitempty"`
	Rate           decimal.Decimal `json:"rate"`
	Comment        string          `json:"comment,omitempty"`
	Attempts       int             `json:"attempts"`
	FirstReachedAt time.Time       `json:"firstReachedAt"`
	Position       *int            `json:"position,omitempty"`
}

// Rank returns a 0-based position pointer for use in Entry.
func Rank(i int) *int {
	return &i
}

// Snapshot is the ordered standing of all carriers on a load. Entries are
// sorted by rate ascending; ties go to whoever reached the rate first.
type Snapshot struct {
	LoadID  uuid.UUID `json:"loadId"`
	Entries []Entry   `json:"entries"`
	TakenAt time.Time `json:"takenAt"`
}

// Board is the volatile standing store. It is derived state: losing it is
// recoverable by rebuilding from the rate ledger.
type Board interface {
	Upsert(ctx context.Context, loadID uuid.UUID, entry Entry) error
	Snapshot(ctx context.Context, loadID uuid.UUID) (*Snapshot, error)
	Lowest(ctx context.Context, loadID uuid.UUID) (*Entry, error)
	Discard(ctx context.Context, loadID uuid.UUID) error
}

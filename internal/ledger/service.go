package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/pagination"
)

// Service records and reads back rate submissions. The ledger is the source
// of truth; the Redis leaderboard is derived from it.
type Service interface {
	Append(ctx context.Context, input AppendRateInput) (*models.RateSubmission, error)
	History(ctx context.Context, loadID, carrierID uuid.UUID, params pagination.Params) ([]models.RateSubmission, string, error)
	LowestForLoad(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error)
	LowestForCarrier(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error)
	// BestPerCarrier folds the load's ledger into each carrier's standing
	// entry: lowest rate wins, earliest submission breaks ties.
	BestPerCarrier(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error)
	AttemptsUsed(ctx context.Context, loadID, carrierID uuid.UUID) (int, error)
}

// AppendRateInput captures the immutable data a rate submission requires.
// AttemptNumber is assigned by the service; callers must already hold the
// per-(load,carrier) serialization the bidding service provides.
type AppendRateInput struct {
	LoadID      uuid.UUID
	CarrierID   uuid.UUID
	Rate        decimal.Decimal
	Comment     *string
	SubmittedBy uuid.UUID
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Append(ctx context.Context, input AppendRateInput) (*models.RateSubmission, error) {
	if input.LoadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	if input.CarrierID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "carrier id is required")
	}
	if input.SubmittedBy == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "submitting user is required")
	}
	if !input.Rate.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "rate must be positive")
	}

	used, err := s.repo.CountAttempts(ctx, input.LoadID, input.CarrierID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "counting attempts")
	}

	submission := &models.RateSubmission{
		ID:            uuid.New(),
		LoadID:        input.LoadID,
		CarrierID:     input.CarrierID,
		Rate:          input.Rate,
		Comment:       input.Comment,
		AttemptNumber: used + 1,
		SubmittedBy:   input.SubmittedBy,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.Append(ctx, submission); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "appending rate submission")
	}
	return submission, nil
}

func (s *service) History(ctx context.Context, loadID, carrierID uuid.UUID, params pagination.Params) ([]models.RateSubmission, string, error) {
	if loadID == uuid.Nil || carrierID == uuid.Nil {
		return nil, "", apperrors.New(apperrors.CodeValidation, "load id and carrier id are required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByLoadCarrier(ctx, loadID, carrierID, limit+1, cursor)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeDependency, err, "listing rate history")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) LowestForLoad(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error) {
	if loadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	row, err := s.repo.LowestForLoad(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading lowest rate")
	}
	return row, nil
}

func (s *service) LowestForCarrier(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error) {
	if loadID == uuid.Nil || carrierID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id and carrier id are required")
	}
	row, err := s.repo.LowestForCarrier(ctx, loadID, carrierID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading carrier lowest rate")
	}
	return row, nil
}

func (s *service) BestPerCarrier(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error) {
	if loadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	rows, err := s.repo.ListByLoad(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing load ledger")
	}

	best := make(map[uuid.UUID]models.RateSubmission)
	order := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		current, seen := best[row.CarrierID]
		if !seen {
			best[row.CarrierID] = row
			order = append(order, row.CarrierID)
			continue
		}
		// rows arrive oldest first, so on equal rates the earlier one stays.
		if row.Rate.LessThan(current.Rate) {
			best[row.CarrierID] = row
		}
	}

	out := make([]models.RateSubmission, 0, len(order))
	for _, carrierID := range order {
		out = append(out, best[carrierID])
	}
	return out, nil
}

func (s *service) AttemptsUsed(ctx context.Context, loadID, carrierID uuid.UUID) (int, error) {
	if loadID == uuid.Nil || carrierID == uuid.Nil {
		return 0, apperrors.New(apperrors.CodeValidation, "load id and carrier id are required")
	}
	used, err := s.repo.CountAttempts(ctx, loadID, carrierID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDependency, err, "counting attempts")
	}
	return used, nil
}

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/pkg/db/models"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/pagination"
)

type fakeRepository struct {
	appendFn        func(ctx context.Context, submission *models.RateSubmission) error
	listByLoadFn    func(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error)
	listHistoryFn   func(ctx context.Context, loadID, carrierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RateSubmission, error)
	countAttemptsFn func(ctx context.Context, loadID, carrierID uuid.UUID) (int, error)
	lowestLoadFn    func(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error)
	lowestCarrierFn func(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Append(ctx context.Context, submission *models.RateSubmission) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, submission)
	}
	return nil
}

func (f *fakeRepository) ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error) {
	if f.listByLoadFn != nil {
		return f.listByLoadFn(ctx, loadID)
	}
	return nil, nil
}

func (f *fakeRepository) ListByLoadCarrier(ctx context.Context, loadID, carrierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RateSubmission, error) {
	if f.listHistoryFn != nil {
		return f.listHistoryFn(ctx, loadID, carrierID, limit, cursor)
	}
	return nil, nil
}

func (f *fakeRepository) CountAttempts(ctx context.Context, loadID, carrierID uuid.UUID) (int, error) {
	if f.countAttemptsFn != nil {
		return f.countAttemptsFn(ctx, loadID, carrierID)
	}
	return 0, nil
}

func (f *fakeRepository) LowestForLoad(ctx context.Context, loadID uuid.UUID) (*models.RateSubmission, error) {
	if f.lowestLoadFn != nil {
		return f.lowestLoadFn(ctx, loadID)
	}
	return nil, nil
}

func (f *fakeRepository) LowestForCarrier(ctx context.Context, loadID, carrierID uuid.UUID) (*models.RateSubmission, error) {
	if f.lowestCarrierFn != nil {
		return f.lowestCarrierFn(ctx, loadID, carrierID)
	}
	return nil, nil
}

func TestService_AppendAssignsAttemptNumbers(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	attempts := 2
	repo.countAttemptsFn = func(ctx context.Context, loadID, carrierID uuid.UUID) (int, error) {
		return attempts, nil
	}
	var created *models.RateSubmission
	repo.appendFn = func(ctx context.Context, submission *models.RateSubmission) error {
		created = submission
		return nil
	}

	input := AppendRateInput{
		LoadID:      uuid.New(),
		CarrierID:   uuid.New(),
		Rate:        decimal.NewFromInt(41500),
		SubmittedBy: uuid.New(),
	}
	got, err := svc.Append(context.Background(), input)
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if created == nil {
		t.Fatal("expected submission to be appended")
	}
	if created.AttemptNumber != 3 {
		t.Fatalf("expected attempt number 3, got %d", created.AttemptNumber)
	}
	if !created.Rate.Equal(input.Rate) {
		t.Fatalf("rate mismatch: %s", created.Rate)
	}
	if got != created {
		t.Fatal("service should return the appended submission")
	}
}

func TestService_AppendValidation(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})

	tests := []struct {
		name  string
		input AppendRateInput
	}{
		{
			name: "missing load id",
			input: AppendRateInput{
				CarrierID:   uuid.New(),
				Rate:        decimal.NewFromInt(100),
				SubmittedBy: uuid.New(),
			},
		},
		{
			name: "missing carrier id",
			input: AppendRateInput{
				LoadID:      uuid.New(),
				Rate:        decimal.NewFromInt(100),
				SubmittedBy: uuid.New(),
			},
		},
		{
			name: "missing submitter",
			input: AppendRateInput{
				LoadID:    uuid.New(),
				CarrierID: uuid.New(),
				Rate:      decimal.NewFromInt(100),
			},
		},
		{
			name: "non-positive rate",
			input: AppendRateInput{
				LoadID:      uuid.New(),
				CarrierID:   uuid.New(),
				Rate:        decimal.Zero,
				SubmittedBy: uuid.New(),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), tc.input)
			if err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
			if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}
}

func TestService_AppendRepoErrorIsDependency(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	repo.appendFn = func(ctx context.Context, submission *models.RateSubmission) error {
		return errors.New("connection reset")
	}

	_, err := svc.Append(context.Background(), AppendRateInput{
		LoadID:      uuid.New(),
		CarrierID:   uuid.New(),
		Rate:        decimal.NewFromInt(100),
		SubmittedBy: uuid.New(),
	})
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeDependency {
		t.Fatalf("expected dependency code, got %v", err)
	}
}

func TestService_BestPerCarrierFoldsLedger(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	loadID := uuid.New()
	carrierA := uuid.New()
	carrierB := uuid.New()
	base := time.Now().Add(-time.Hour)

	repo.listByLoadFn = func(ctx context.Context, id uuid.UUID) ([]models.RateSubmission, error) {
		if id != loadID {
			t.Fatalf("unexpected load id %s", id)
		}
		return []models.RateSubmission{
			{CarrierID: carrierA, Rate: decimal.NewFromInt(500), CreatedAt: base},
			{CarrierID: carrierB, Rate: decimal.NewFromInt(490), CreatedAt: base.Add(time.Minute)},
			{CarrierID: carrierA, Rate: decimal.NewFromInt(480), CreatedAt: base.Add(2 * time.Minute)},
			// same rate as carrierA's best, later: must not displace it
			{CarrierID: carrierA, Rate: decimal.NewFromInt(480), CreatedAt: base.Add(3 * time.Minute)},
		}, nil
	}

	best, err := svc.BestPerCarrier(context.Background(), loadID)
	if err != nil {
		t.Fatalf("BestPerCarrier error: %v", err)
	}
	if len(best) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(best))
	}
	byCarrier := map[uuid.UUID]models.RateSubmission{}
	for _, row := range best {
		byCarrier[row.CarrierID] = row
	}
	if got := byCarrier[carrierA]; !got.Rate.Equal(decimal.NewFromInt(480)) || !got.CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("carrier A best wrong: %+v", got)
	}
	if got := byCarrier[carrierB]; !got.Rate.Equal(decimal.NewFromInt(490)) {
		t.Fatalf("carrier B best wrong: %+v", got)
	}
}

func TestService_HistoryPaginates(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	loadID := uuid.New()
	carrierID := uuid.New()
	now := time.Now().UTC()

	rows := make([]models.RateSubmission, 0, 3)
	for i := 0; i < 3; i++ {
		rows = append(rows, models.RateSubmission{
			ID:        uuid.New(),
			LoadID:    loadID,
			CarrierID: carrierID,
			Rate:      decimal.NewFromInt(int64(500 - i)),
			CreatedAt: now.Add(time.Duration(-i) * time.Minute),
		})
	}

	repo.listHistoryFn = func(ctx context.Context, _, _ uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RateSubmission, error) {
		if limit != 3 {
			t.Fatalf("expected limit+1 = 3, got %d", limit)
		}
		return rows, nil
	}

	got, next, err := svc.History(context.Background(), loadID, carrierID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if next == "" {
		t.Fatal("expected next cursor when more rows exist")
	}
	cursor, err := pagination.ParseCursor(next)
	if err != nil {
		t.Fatalf("next cursor should round-trip: %v", err)
	}
	if cursor.ID != got[1].ID {
		t.Fatal("cursor should point at the last returned row")
	}
}

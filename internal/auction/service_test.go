package auction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/internal/notifications"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
)

type fakeRepository struct {
	createFn        func(ctx context.Context, load *models.Load) error
	getFn           func(ctx context.Context, id uuid.UUID) (*models.Load, error)
	updateGuardedFn func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error)
	dueStartFn      func(ctx context.Context, now time.Time, limit int) ([]models.Load, error)
	dueCloseFn      func(ctx context.Context, now time.Time, limit int) ([]models.Load, error)
	listByStatusFn  func(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, load *models.Load) error {
	if f.createFn != nil {
		return f.createFn(ctx, load)
	}
	return nil
}

func (f *fakeRepository) Get(ctx context.Context, id uuid.UUID) (*models.Load, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeRepository) UpdateGuarded(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
	if f.updateGuardedFn != nil {
		return f.updateGuardedFn(ctx, id, from, updates)
	}
	return true, nil
}

func (f *fakeRepository) ListByStatus(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, shipperID, status)
	}
	return nil, nil
}

func (f *fakeRepository) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]models.Load, error) {
	if f.dueStartFn != nil {
		return f.dueStartFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeRepository) ListDueToClose(ctx context.Context, now time.Time, limit int) ([]models.Load, error) {
	if f.dueCloseFn != nil {
		return f.dueCloseFn(ctx, now, limit)
	}
	return nil, nil
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func testSettings() Settings {
	return Settings{
		ExtensionThreshold: 2 * time.Minute,
		ExtensionDuration:  5 * time.Minute,
	}
}

func draftLoad(now time.Time) *models.Load {
	return &models.Load{
		ID:           uuid.New(),
		ShipperID:    uuid.New(),
		Status:       enums.LoadStatusDraft,
		BidStartTime: now.Add(30 * time.Minute),
		BidEndTime:   now.Add(90 * time.Minute),
	}
}

func TestCreateValidatesWindowAndDefaults(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var created *models.Load
	repo := &fakeRepository{createFn: func(ctx context.Context, load *models.Load) error {
		created = load
		return nil
	}}
	settings := testSettings()
	settings.DefaultMaxAttempts = 3
	svc, _ := NewService(repo, nil, nil, nil, nil, nil, settings, fixedClock(now))

	input := CreateInput{
		ShipperID:       uuid.New(),
		ReferenceNumber: "HB-200",
		OriginCity:      "Pune",
		DestinationCity: "Nagpur",
		BasePrice:       decimal.NewFromInt(1000),
		DecrementKind:   enums.DecrementKindAbsolute,
		DecrementValue:  decimal.NewFromInt(50),
		VehicleCount:    4,
		BidStartTime:    now.Add(time.Hour),
		BidEndTime:      now.Add(2 * time.Hour),
		Actor:           uuid.New(),
	}
	load, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if load.Status != enums.LoadStatusDraft {
		t.Fatalf("new loads must start in draft, got %s", load.Status)
	}
	if load.MaxAttempts != 3 {
		t.Fatalf("expected default attempt cap, got %d", load.MaxAttempts)
	}
	if created == nil || created.Visibility != enums.LoadVisibilityOpen {
		t.Fatalf("expected open visibility default, got %+v", created)
	}

	input.BidEndTime = input.BidStartTime
	if _, err := svc.Create(context.Background(), input); err == nil {
		t.Fatal("expected inverted window to be rejected")
	}
}

func TestPublishFromDraft(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	load := draftLoad(now)
	repo := &fakeRepository{}

	var guardedFrom enums.LoadStatus
	repo.getFn = func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}
	repo.updateGuardedFn = func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
		guardedFrom = from
		load.Status = enums.LoadStatusNotStarted
		return true, nil
	}

	svc, err := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}

	updated, err := svc.Publish(context.Background(), PublishInput{LoadID: load.ID, Actor: uuid.New()})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if guardedFrom != enums.LoadStatusDraft {
		t.Fatalf("expected guard on draft, got %s", guardedFrom)
	}
	if updated.Status != enums.LoadStatusNotStarted {
		t.Fatalf("expected not_started, got %s", updated.Status)
	}
}

func TestPublishRejectsElapsedWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	load := draftLoad(now)
	load.BidStartTime = now.Add(-time.Minute)

	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		return load, nil
	}}
	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	_, err := svc.Publish(context.Background(), PublishInput{LoadID: load.ID, Actor: uuid.New()})
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeValidation {
		t.Fatalf("expected validation rejection, got %v", err)
	}
}

func TestPublishFromWrongStateIsInvalidTransition(t *testing.T) {
	now := time.Now()
	load := draftLoad(now)
	load.Status = enums.LoadStatusLive

	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		return load, nil
	}}
	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	_, err := svc.Publish(context.Background(), PublishInput{LoadID: load.ID, Actor: uuid.New()})
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["currentStatus"] != "live" || details["attemptedStatus"] != "not_started" {
		t.Fatalf("expected transition details, got %v", typed.Details())
	}
}

func TestCancelRequiresReasonAndCancellableState(t *testing.T) {
	now := time.Now()
	load := draftLoad(now)
	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}}
	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	if _, err := svc.Cancel(context.Background(), CancelInput{LoadID: load.ID, Reason: "  "}); err == nil {
		t.Fatal("expected empty reason to be rejected")
	}

	load.Status = enums.LoadStatusLive
	_, err := svc.Cancel(context.Background(), CancelInput{LoadID: load.ID, Reason: "shipper withdrew", Actor: uuid.New()})
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeStateConflict {
		t.Fatalf("expected live load to be uncancellable, got %v", err)
	}

	load.Status = enums.LoadStatusPartiallyConfirmed
	repo.updateGuardedFn = func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
		if from != enums.LoadStatusPartiallyConfirmed {
			t.Fatalf("guard must use the observed status, got %s", from)
		}
		if updates["cancellation_reason"] != "shipper withdrew" {
			t.Fatalf("expected reason recorded, got %v", updates["cancellation_reason"])
		}
		load.Status = enums.LoadStatusCancelled
		return true, nil
	}
	updated, err := svc.Cancel(context.Background(), CancelInput{LoadID: load.ID, Reason: "shipper withdrew", Actor: uuid.New()})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if updated.Status != enums.LoadStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
}

type fakeDispatcher struct {
	sent []notifications.Dispatch
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, tx *gorm.DB, dispatch notifications.Dispatch) error {
	f.sent = append(f.sent, dispatch)
	return nil
}

type fakeBidders struct {
	rows []models.RateSubmission
}

func (f *fakeBidders) BestPerCarrier(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error) {
	return f.rows, nil
}

func TestPublishNotifiesShipper(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	load := draftLoad(now)
	load.ReferenceNumber = "HB-310"
	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}}

	notify := &fakeDispatcher{}
	svc, _ := NewService(repo, nil, nil, notify, nil, nil, testSettings(), fixedClock(now))

	if _, err := svc.Publish(context.Background(), PublishInput{LoadID: load.ID, Actor: uuid.New()}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(notify.sent) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(notify.sent))
	}
	sent := notify.sent[0]
	if len(sent.Recipients) != 1 || sent.Recipients[0] != load.ShipperID {
		t.Fatalf("expected the shipper as recipient, got %v", sent.Recipients)
	}
	if sent.Category != enums.NotificationLoadPublished {
		t.Fatalf("expected load_published category, got %s", sent.Category)
	}
	if sent.DeepLink == "" {
		t.Fatal("expected a deep link on the dispatch")
	}
}

func TestCancelNotifiesBiddingCarriers(t *testing.T) {
	now := time.Now()
	load := draftLoad(now)
	load.Status = enums.LoadStatusPending
	load.ReferenceNumber = "HB-311"
	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}}

	carrierA := uuid.New()
	carrierB := uuid.New()
	notify := &fakeDispatcher{}
	bidders := &fakeBidders{rows: []models.RateSubmission{
		{CarrierID: carrierA, Rate: decimal.NewFromInt(900)},
		{CarrierID: carrierB, Rate: decimal.NewFromInt(950)},
	}}
	svc, _ := NewService(repo, nil, nil, notify, bidders, nil, testSettings(), fixedClock(now))

	if _, err := svc.Cancel(context.Background(), CancelInput{LoadID: load.ID, Reason: "lane dropped", Actor: uuid.New()}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if len(notify.sent) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(notify.sent))
	}
	sent := notify.sent[0]
	if len(sent.Recipients) != 2 || sent.Recipients[0] != carrierA || sent.Recipients[1] != carrierB {
		t.Fatalf("expected both bidding carriers, got %v", sent.Recipients)
	}
	if sent.Category != enums.NotificationLoadCancelled {
		t.Fatalf("expected load_cancelled category, got %s", sent.Category)
	}

	// Cancelling a load nobody bid on sends nothing.
	notify.sent = nil
	bidders.rows = nil
	load.Status = enums.LoadStatusDraft
	if _, err := svc.Cancel(context.Background(), CancelInput{LoadID: load.ID, Reason: "never published", Actor: uuid.New()}); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if len(notify.sent) != 0 {
		t.Fatalf("expected no dispatch without bidders, got %d", len(notify.sent))
	}
}

func TestCompleteFromConfirmed(t *testing.T) {
	now := time.Now()
	load := draftLoad(now)
	load.Status = enums.LoadStatusConfirmed
	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}}

	var gotUpdates map[string]any
	repo.updateGuardedFn = func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
		if from != enums.LoadStatusConfirmed {
			t.Fatalf("guard must use confirmed, got %s", from)
		}
		gotUpdates = updates
		load.Status = enums.LoadStatusCompleted
		return true, nil
	}

	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	if _, err := svc.Complete(context.Background(), CompleteInput{LoadID: load.ID, Reason: " "}); err == nil {
		t.Fatal("expected empty reason to be rejected")
	}

	updated, err := svc.Complete(context.Background(), CompleteInput{LoadID: load.ID, Reason: "all trips delivered", Actor: uuid.New()})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if updated.Status != enums.LoadStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}
	if gotUpdates["completion_reason"] != "all trips delivered" {
		t.Fatalf("expected completion reason recorded, got %v", gotUpdates["completion_reason"])
	}
}

func TestCompleteFromWrongStateIsInvalidTransition(t *testing.T) {
	now := time.Now()
	load := draftLoad(now)
	load.Status = enums.LoadStatusPending
	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		return load, nil
	}}
	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	_, err := svc.Complete(context.Background(), CompleteInput{LoadID: load.ID, Reason: "done", Actor: uuid.New()})
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["attemptedStatus"] != "completed" {
		t.Fatalf("expected transition details, got %v", typed.Details())
	}
}

func TestExtendInsideThresholdMovesWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	load := draftLoad(now)
	load.Status = enums.LoadStatusLive
	load.BidEndTime = now.Add(90 * time.Second)

	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		copied := *load
		return &copied, nil
	}}
	var gotUpdates map[string]any
	repo.updateGuardedFn = func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
		gotUpdates = updates
		load.BidEndTime = updates["bid_end_time"].(time.Time)
		load.ExtendedMinutes += 5
		return true, nil
	}

	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))
	updated, extended, err := svc.Extend(context.Background(), ExtendInput{LoadID: load.ID, Actor: uuid.New()})
	if err != nil {
		t.Fatalf("Extend error: %v", err)
	}
	if !extended {
		t.Fatal("expected extension inside threshold")
	}
	wantEnd := now.Add(90 * time.Second).Add(5 * time.Minute)
	if !updated.BidEndTime.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, updated.BidEndTime)
	}
	if gotUpdates["bid_end_time"].(time.Time) != wantEnd {
		t.Fatalf("persisted end mismatch: %v", gotUpdates["bid_end_time"])
	}
}

func TestExtendOutsideThresholdIsNoop(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	load := draftLoad(now)
	load.Status = enums.LoadStatusLive
	load.BidEndTime = now.Add(time.Hour)

	repo := &fakeRepository{getFn: func(ctx context.Context, id uuid.UUID) (*models.Load, error) {
		return load, nil
	}}
	repo.updateGuardedFn = func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
		t.Fatal("no update expected outside the threshold")
		return false, nil
	}

	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))
	_, extended, err := svc.Extend(context.Background(), ExtendInput{LoadID: load.ID})
	if err != nil {
		t.Fatalf("Extend error: %v", err)
	}
	if extended {
		t.Fatal("expected no-op outside threshold")
	}
}

func TestInitiateAndCloseDueAreGuarded(t *testing.T) {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	startDue := models.Load{ID: uuid.New(), Status: enums.LoadStatusNotStarted, BidStartTime: now}
	closeDue := models.Load{ID: uuid.New(), Status: enums.LoadStatusLive, BidEndTime: now}
	lostRace := models.Load{ID: uuid.New(), Status: enums.LoadStatusLive, BidEndTime: now}

	repo := &fakeRepository{
		dueStartFn: func(ctx context.Context, _ time.Time, limit int) ([]models.Load, error) {
			return []models.Load{startDue}, nil
		},
		dueCloseFn: func(ctx context.Context, _ time.Time, limit int) ([]models.Load, error) {
			return []models.Load{closeDue, lostRace}, nil
		},
		updateGuardedFn: func(ctx context.Context, id uuid.UUID, from enums.LoadStatus, updates map[string]any) (bool, error) {
			// simulate a competing scheduler winning the lostRace load
			if id == lostRace.ID {
				return false, nil
			}
			return true, nil
		},
	}

	svc, _ := NewService(repo, nil, nil, nil, nil, nil, testSettings(), fixedClock(now))

	started, err := svc.InitiateDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("InitiateDue error: %v", err)
	}
	if started != 1 {
		t.Fatalf("expected 1 started, got %d", started)
	}

	closed, err := svc.CloseDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("CloseDue error: %v", err)
	}
	if len(closed) != 1 || closed[0] != closeDue.ID {
		t.Fatalf("expected only the uncontested load to close, got %v", closed)
	}
}

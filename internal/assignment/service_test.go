package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/notifications"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS loads (
  id TEXT PRIMARY KEY,
  shipper_id TEXT NOT NULL,
  reference_number TEXT NOT NULL,
  origin_city TEXT NOT NULL DEFAULT '',
  destination_city TEXT NOT NULL DEFAULT '',
  commodity TEXT,
  status TEXT NOT NULL DEFAULT 'draft',
  visibility TEXT NOT NULL DEFAULT 'open_market',
  base_price NUMERIC NOT NULL DEFAULT 0,
  decrement_kind TEXT NOT NULL DEFAULT 'absolute',
  decrement_value NUMERIC NOT NULL DEFAULT 0,
  show_lowest_to_carriers BOOLEAN NOT NULL DEFAULT FALSE,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  vehicle_count INTEGER NOT NULL DEFAULT 1,
  allow_split BOOLEAN NOT NULL DEFAULT FALSE,
  is_split BOOLEAN NOT NULL DEFAULT FALSE,
  bid_start_time DATETIME NOT NULL,
  bid_end_time DATETIME NOT NULL,
  extended_minutes INTEGER NOT NULL DEFAULT 0,
  cancellation_reason TEXT,
  completion_reason TEXT,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_by TEXT NOT NULL,
  updated_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  load_id TEXT NOT NULL,
  carrier_id TEXT NOT NULL,
  vehicle_count INTEGER NOT NULL DEFAULT 0,
  price NUMERIC NOT NULL DEFAULT 0,
  price_diff_percent NUMERIC NOT NULL DEFAULT 0,
  bid_position TEXT NOT NULL DEFAULT '',
  pmr_price NUMERIC,
  pmr_comment TEXT,
  is_pmr_approved BOOLEAN,
  negotiated_by_arbiter BOOLEAN NOT NULL DEFAULT FALSE,
  is_assigned BOOLEAN NOT NULL DEFAULT TRUE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  history TEXT,
  created_by TEXT NOT NULL,
  updated_by TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (load_id, carrier_id)
);`
	if err := conn.Exec(ddl).Error; err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	return newTestServiceWithDispatcher(t, conn, nil)
}

func newTestServiceWithDispatcher(t *testing.T, conn *gorm.DB, notify notifications.Dispatcher) Service {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }
	svc, err := NewService(NewRepository(conn), auction.NewRepository(conn), nil, nil, notify, nil, clock)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

type capturingDispatcher struct {
	sent []notifications.Dispatch
}

func (d *capturingDispatcher) Dispatch(ctx context.Context, tx *gorm.DB, dispatch notifications.Dispatch) error {
	d.sent = append(d.sent, dispatch)
	return nil
}

func seedLoad(t *testing.T, conn *gorm.DB, vehicles int, status enums.LoadStatus) *models.Load {
	t.Helper()
	load := &models.Load{
		ID:              uuid.New(),
		ShipperID:       uuid.New(),
		ReferenceNumber: "HB-100",
		Status:          status,
		BasePrice:       decimal.NewFromInt(1000),
		DecrementValue:  decimal.NewFromInt(50),
		VehicleCount:    vehicles,
		BidStartTime:    time.Now().Add(-2 * time.Hour),
		BidEndTime:      time.Now().Add(-time.Hour),
		IsActive:        true,
		CreatedBy:       uuid.New(),
	}
	if err := conn.Create(load).Error; err != nil {
		t.Fatalf("seed load: %v", err)
	}
	return load
}

func loadStatus(t *testing.T, conn *gorm.DB, loadID uuid.UUID) *models.Load {
	t.Helper()
	var load models.Load
	if err := conn.Where("id = ?", loadID).First(&load).Error; err != nil {
		t.Fatalf("read load: %v", err)
	}
	return &load
}

func assignOne(t *testing.T, svc Service, loadID, carrierID uuid.UUID, fleet int, price int64) []models.Assignment {
	t.Helper()
	rows, err := svc.Assign(context.Background(), AssignInput{
		LoadID: loadID,
		Actor:  uuid.New(),
		Requests: []AssignRequest{{
			CarrierID:  carrierID,
			Position:   "L1",
			Price:      decimal.NewFromInt(price),
			FleetCount: fleet,
		}},
	})
	if err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	return rows
}

func TestAssignPartialThenFullThenCapacityExceeded(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)

	carrierX := uuid.New()
	carrierY := uuid.New()

	assignOne(t, svc, load.ID, carrierX, 3, 940)
	if got := loadStatus(t, conn, load.ID); got.Status != enums.LoadStatusPartiallyConfirmed {
		t.Fatalf("expected partially_confirmed after 3/10, got %s", got.Status)
	}

	assignOne(t, svc, load.ID, carrierY, 7, 950)
	updated := loadStatus(t, conn, load.ID)
	if updated.Status != enums.LoadStatusConfirmed {
		t.Fatalf("expected confirmed after 10/10, got %s", updated.Status)
	}
	if !updated.IsSplit {
		t.Fatal("two active carriers must mark the load split")
	}

	_, err := svc.Assign(context.Background(), AssignInput{
		LoadID: load.ID,
		Actor:  uuid.New(),
		Requests: []AssignRequest{{
			CarrierID:  uuid.New(),
			Price:      decimal.NewFromInt(960),
			FleetCount: 1,
		}},
	})
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeCapacityExceeded {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
}

func TestReassignSameCarrierIsIdempotent(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)

	carrier := uuid.New()
	assignOne(t, svc, load.ID, carrier, 3, 940)
	rows := assignOne(t, svc, load.ID, carrier, 3, 940)

	if len(rows) != 1 {
		t.Fatalf("expected one assignment row, got %d", len(rows))
	}
	if len(rows[0].History) != 2 {
		t.Fatalf("expected two assign events in history, got %d", len(rows[0].History))
	}
	for _, event := range rows[0].History {
		if event.Kind != enums.AssignmentEventAssign {
			t.Fatalf("expected assign events only, got %s", event.Kind)
		}
	}
	if got := loadStatus(t, conn, load.ID); got.Status != enums.LoadStatusPartiallyConfirmed {
		t.Fatalf("expected partially_confirmed, got %s", got.Status)
	}
}

func TestUnassignRecomputesStatusAndClearsPriceMatch(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)

	carrierX := uuid.New()
	carrierY := uuid.New()
	assignOne(t, svc, load.ID, carrierX, 3, 940)
	assignOne(t, svc, load.ID, carrierY, 7, 950)

	updated, err := svc.Unassign(context.Background(), UnassignInput{
		LoadID:    load.ID,
		CarrierID: carrierX,
		Reason:    "carrier withdrew trucks",
		Actor:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("Unassign error: %v", err)
	}
	if updated.Status != enums.LoadStatusPartiallyConfirmed {
		t.Fatalf("expected partially_confirmed with one carrier left, got %s", updated.Status)
	}
	if updated.IsSplit {
		t.Fatal("a single remaining carrier is not a split")
	}

	var row models.Assignment
	if err := conn.Where("load_id = ? AND carrier_id = ?", load.ID, carrierX).First(&row).Error; err != nil {
		t.Fatalf("read assignment: %v", err)
	}
	if row.IsAssigned || row.VehicleCount != 0 {
		t.Fatalf("expected deactivated zero-fleet row, got assigned=%v fleet=%d", row.IsAssigned, row.VehicleCount)
	}
	if row.PMRPrice != nil || row.IsPMRApproved != nil {
		t.Fatal("unassign must clear pending price-match state")
	}
	last := row.History[len(row.History)-1]
	if last.Kind != enums.AssignmentEventUnassign || last.Reason != "carrier withdrew trucks" {
		t.Fatalf("expected unassign event with reason, got %+v", last)
	}

	updated, err = svc.Unassign(context.Background(), UnassignInput{
		LoadID:    load.ID,
		CarrierID: carrierY,
		Reason:    "shipper re-tendering",
		Actor:     uuid.New(),
	})
	if err != nil {
		t.Fatalf("second Unassign error: %v", err)
	}
	if updated.Status != enums.LoadStatusPending {
		t.Fatalf("expected pending with no carriers left, got %s", updated.Status)
	}
}

func TestUnassignRequiresReasonAndActiveRow(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)
	carrier := uuid.New()
	assignOne(t, svc, load.ID, carrier, 3, 940)

	if _, err := svc.Unassign(context.Background(), UnassignInput{
		LoadID: load.ID, CarrierID: carrier, Reason: " ",
	}); err == nil {
		t.Fatal("expected empty reason to be rejected")
	}

	_, err := svc.Unassign(context.Background(), UnassignInput{
		LoadID: load.ID, CarrierID: uuid.New(), Reason: "mistake", Actor: uuid.New(),
	})
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeNotFound {
		t.Fatalf("expected not found for unknown carrier, got %v", err)
	}
}

func TestProposePriceMatchToActiveCarrierFailsWithoutMutation(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)
	carrier := uuid.New()
	assignOne(t, svc, load.ID, carrier, 3, 940)

	_, err := svc.ProposePriceMatch(context.Background(), ProposeInput{
		LoadID: load.ID,
		Actor:  uuid.New(),
		Proposals: []PriceMatchProposal{{
			CarrierID: carrier,
			Rate:      decimal.NewFromInt(900),
		}},
	})
	typed := apperrors.As(err)
	if typed == nil || typed.Code() != apperrors.CodeAlreadyAssigned {
		t.Fatalf("expected already assigned, got %v", err)
	}

	var row models.Assignment
	if err := conn.Where("load_id = ? AND carrier_id = ?", load.ID, carrier).First(&row).Error; err != nil {
		t.Fatalf("read assignment: %v", err)
	}
	if row.PMRPrice != nil || len(row.History) != 1 {
		t.Fatal("rejected proposal must not mutate the assignment")
	}
}

func TestPriceMatchLifecycle(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)
	carrier := uuid.New()
	shipper := uuid.New()

	rows, err := svc.ProposePriceMatch(context.Background(), ProposeInput{
		LoadID: load.ID,
		Actor:  shipper,
		Proposals: []PriceMatchProposal{{
			CarrierID: carrier,
			Rate:      decimal.NewFromInt(900),
		}},
	})
	if err != nil {
		t.Fatalf("ProposePriceMatch error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one assignment row, got %d", len(rows))
	}
	row := rows[0]
	if row.IsAssigned {
		t.Fatal("price-match row must start unassigned")
	}
	if row.PMRPrice == nil || !row.PMRPrice.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected pmr price 900, got %v", row.PMRPrice)
	}
	if row.IsPMRApproved != nil {
		t.Fatal("non-arbiter proposal must await approval")
	}
	if row.History[0].Kind != enums.AssignmentEventPriceMatchRequest {
		t.Fatalf("expected pm-request event, got %s", row.History[0].Kind)
	}

	// carrier counters
	counter := decimal.NewFromInt(930)
	comment := "fuel surcharge"
	updated, err := svc.RespondPriceMatch(context.Background(), RespondInput{
		LoadID:      load.ID,
		CarrierID:   carrier,
		CounterRate: &counter,
		Comment:     &comment,
		Actor:       carrier,
	})
	if err != nil {
		t.Fatalf("counter RespondPriceMatch error: %v", err)
	}
	if !updated.PMRPrice.Equal(counter) || updated.IsPMRApproved != nil {
		t.Fatalf("expected open negotiation at 930, got price=%v approved=%v", updated.PMRPrice, updated.IsPMRApproved)
	}
	if last := updated.History[len(updated.History)-1]; last.Kind != enums.AssignmentEventPriceMatchNegotiated {
		t.Fatalf("expected pm-negotiated event, got %s", last.Kind)
	}

	// shipper approves the counter
	updated, err = svc.RespondPriceMatch(context.Background(), RespondInput{
		LoadID:    load.ID,
		CarrierID: carrier,
		Approve:   true,
		Actor:     shipper,
	})
	if err != nil {
		t.Fatalf("approve RespondPriceMatch error: %v", err)
	}
	if updated.IsPMRApproved == nil || !*updated.IsPMRApproved {
		t.Fatal("expected approval recorded")
	}
	if updated.NegotiatedByArbiter {
		t.Fatal("approval must clear the arbiter flag")
	}
	if last := updated.History[len(updated.History)-1]; last.Kind != enums.AssignmentEventPriceMatchApproved {
		t.Fatalf("expected pm-approved event, got %s", last.Kind)
	}
}

func TestArbiterProposalIsBindingImmediately(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPartiallyConfirmed)
	carrier := uuid.New()

	rows, err := svc.ProposePriceMatch(context.Background(), ProposeInput{
		LoadID:    load.ID,
		Actor:     uuid.New(),
		IsArbiter: true,
		Proposals: []PriceMatchProposal{{
			CarrierID: carrier,
			Rate:      decimal.NewFromInt(880),
		}},
	})
	if err != nil {
		t.Fatalf("ProposePriceMatch error: %v", err)
	}
	row := rows[0]
	if row.IsPMRApproved == nil || !*row.IsPMRApproved {
		t.Fatal("arbiter terms must be approved immediately")
	}
	if !row.NegotiatedByArbiter {
		t.Fatal("arbiter flag must be set")
	}
	if row.History[0].Kind != enums.AssignmentEventSuperuserNegotiation {
		t.Fatalf("expected superuser-negotiation event, got %s", row.History[0].Kind)
	}
}

func TestRespondRejectLeavesPriceUnchanged(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)
	carrier := uuid.New()

	if _, err := svc.ProposePriceMatch(context.Background(), ProposeInput{
		LoadID: load.ID,
		Actor:  uuid.New(),
		Proposals: []PriceMatchProposal{{
			CarrierID: carrier,
			Rate:      decimal.NewFromInt(900),
		}},
	}); err != nil {
		t.Fatalf("ProposePriceMatch error: %v", err)
	}

	updated, err := svc.RespondPriceMatch(context.Background(), RespondInput{
		LoadID:    load.ID,
		CarrierID: carrier,
		Actor:     carrier,
	})
	if err != nil {
		t.Fatalf("RespondPriceMatch error: %v", err)
	}
	if updated.IsPMRApproved == nil || *updated.IsPMRApproved {
		t.Fatal("expected explicit rejection")
	}
	if !updated.PMRPrice.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("rejection must leave price unchanged, got %v", updated.PMRPrice)
	}
	if last := updated.History[len(updated.History)-1]; last.Kind != enums.AssignmentEventPriceMatchRejected {
		t.Fatalf("expected pm-rejected event, got %s", last.Kind)
	}
}

func TestAssignmentLifecycleNotifiesParticipants(t *testing.T) {
	conn := newTestDB(t)
	notify := &capturingDispatcher{}
	svc := newTestServiceWithDispatcher(t, conn, notify)
	load := seedLoad(t, conn, 10, enums.LoadStatusPending)
	carrier := uuid.New()
	other := uuid.New()

	assignOne(t, svc, load.ID, carrier, 10, 940)
	if len(notify.sent) != 1 {
		t.Fatalf("expected assignment dispatch, got %d", len(notify.sent))
	}
	if got := notify.sent[0]; got.Category != enums.NotificationAssignment || got.Recipients[0] != carrier {
		t.Fatalf("expected assignment notice to the carrier, got %+v", got)
	}

	if _, err := svc.Unassign(context.Background(), UnassignInput{
		LoadID: load.ID, CarrierID: carrier, Reason: "trucks reallocated", Actor: uuid.New(),
	}); err != nil {
		t.Fatalf("Unassign error: %v", err)
	}
	if len(notify.sent) != 2 {
		t.Fatalf("expected unassignment dispatch, got %d total", len(notify.sent))
	}
	if got := notify.sent[1]; got.Category != enums.NotificationAssignment || got.Recipients[0] != carrier {
		t.Fatalf("expected release notice to the carrier, got %+v", got)
	}

	if _, err := svc.ProposePriceMatch(context.Background(), ProposeInput{
		LoadID: load.ID,
		Actor:  load.ShipperID,
		Proposals: []PriceMatchProposal{{
			CarrierID: other,
			Rate:      decimal.NewFromInt(900),
		}},
	}); err != nil {
		t.Fatalf("ProposePriceMatch error: %v", err)
	}
	if len(notify.sent) != 3 || notify.sent[2].Category != enums.NotificationPriceMatch {
		t.Fatalf("expected price-match proposal dispatch, got %+v", notify.sent)
	}

	if _, err := svc.RespondPriceMatch(context.Background(), RespondInput{
		LoadID: load.ID, CarrierID: other, Approve: true, Actor: other,
	}); err != nil {
		t.Fatalf("RespondPriceMatch error: %v", err)
	}
	if len(notify.sent) != 4 {
		t.Fatalf("expected response dispatch, got %d total", len(notify.sent))
	}
	last := notify.sent[3]
	if last.Category != enums.NotificationPriceMatch || last.Recipients[0] != load.ShipperID {
		t.Fatalf("expected the shipper to hear the response, got %+v", last)
	}
}

func TestAssignRejectsNonAssignableStatus(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	load := seedLoad(t, conn, 10, enums.LoadStatusLive)

	_, err := svc.Assign(context.Background(), AssignInput{
		LoadID: load.ID,
		Actor:  uuid.New(),
		Requests: []AssignRequest{{
			CarrierID:  uuid.New(),
			Price:      decimal.NewFromInt(940),
			FleetCount: 3,
		}},
	})
	if typed := apperrors.As(err); typed == nil || typed.Code() != apperrors.CodeStateConflict {
		t.Fatalf("expected state conflict while live, got %v", err)
	}
}

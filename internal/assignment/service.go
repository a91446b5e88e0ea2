package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/notifications"
	"github.com/haulbid/haulbid-backend/pkg/db"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/outbox"
)

// Clock lets tests pin history timestamps.
type Clock func() time.Time

// Service is the post-auction capacity engine. Assignments and price-match
// negotiation are shipper initiated and low frequency, so the whole load is
// handled in a single transaction rather than per-carrier locking.
type Service interface {
	Assign(ctx context.Context, input AssignInput) ([]models.Assignment, error)
	Unassign(ctx context.Context, input UnassignInput) (*models.Load, error)
	ProposePriceMatch(ctx context.Context, input ProposeInput) ([]models.Assignment, error)
	RespondPriceMatch(ctx context.Context, input RespondInput) (*models.Assignment, error)
	ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.Assignment, error)
}

// AssignRequest binds one carrier to part of the load's capacity.
type AssignRequest struct {
	CarrierID        uuid.UUID
	Position         string
	Price            decimal.Decimal
	PriceDiffPercent decimal.Decimal
	FleetCount       int
}

type AssignInput struct {
	LoadID   uuid.UUID
	Requests []AssignRequest
	Actor    uuid.UUID
}

type UnassignInput struct {
	LoadID    uuid.UUID
	CarrierID uuid.UUID
	Reason    string
	Actor     uuid.UUID
}

// PriceMatchProposal carries one carrier's proposed terms.
type PriceMatchProposal struct {
	CarrierID uuid.UUID
	Position  string
	Rate      decimal.Decimal
	Comment   *string
}

type ProposeInput struct {
	LoadID    uuid.UUID
	Proposals []PriceMatchProposal
	Actor     uuid.UUID
	// IsArbiter marks an arbitrating role whose terms are binding: the
	// proposal is approved immediately instead of awaiting a response.
	IsArbiter bool
}

type RespondInput struct {
	LoadID      uuid.UUID
	CarrierID   uuid.UUID
	Approve     bool
	CounterRate *decimal.Decimal
	Comment     *string
	Actor       uuid.UUID
}

type service struct {
	repo   Repository
	loads  auction.Repository
	client *db.Client
	events *outbox.Service
	notify notifications.Dispatcher
	logg   *logger.Logger
	now    Clock
}

// NewService wires the assignment engine.
func NewService(repo Repository, loads auction.Repository, client *db.Client, events *outbox.Service, notify notifications.Dispatcher, logg *logger.Logger, clock Clock) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if loads == nil {
		return nil, fmt.Errorf("load repository required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:   repo,
		loads:  loads,
		client: client,
		events: events,
		notify: notify,
		logg:   logg,
		now:    clock,
	}, nil
}

func (s *service) ListByLoad(ctx context.Context, loadID uuid.UUID) ([]models.Assignment, error) {
	if loadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	rows, err := s.repo.ListByLoad(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing assignments")
	}
	return rows, nil
}

// Assign creates or updates assignment rows for the requested carriers.
// Re-assigning an existing carrier updates the row in place and appends a
// fresh assign event; history is append-only so the full lifecycle stays
// auditable.
func (s *service) Assign(ctx context.Context, input AssignInput) ([]models.Assignment, error) {
	if input.LoadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	if len(input.Requests) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one carrier is required")
	}
	seen := make(map[uuid.UUID]bool, len(input.Requests))
	for _, req := range input.Requests {
		if req.CarrierID == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "carrier id is required")
		}
		if seen[req.CarrierID] {
			return nil, apperrors.New(apperrors.CodeValidation, "duplicate carrier in request")
		}
		seen[req.CarrierID] = true
		if req.FleetCount <= 0 {
			return nil, apperrors.New(apperrors.CodeValidation, "fleet count must be positive")
		}
		if !req.Price.IsPositive() {
			return nil, apperrors.New(apperrors.CodeValidation, "price must be positive")
		}
	}

	load, err := s.getLoad(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByLoad(ctx, input.LoadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing assignments")
	}

	// Final capacity is the requested counts plus every active assignment
	// the request does not touch; the invariant is never clamped, only
	// rejected.
	fleetByCarrier := make(map[uuid.UUID]int)
	for _, row := range existing {
		if row.IsAssigned {
			fleetByCarrier[row.CarrierID] = row.VehicleCount
		}
	}
	for _, req := range input.Requests {
		fleetByCarrier[req.CarrierID] = req.FleetCount
	}
	total := 0
	for _, count := range fleetByCarrier {
		total += count
	}
	if total > load.VehicleCount {
		return nil, apperrors.New(apperrors.CodeCapacityExceeded, "requested capacity exceeds remaining vehicles").
			WithDetails(map[string]any{
				"requestedFleetCount": total,
				"vehicleCount":        load.VehicleCount,
			})
	}

	target := enums.LoadStatusPartiallyConfirmed
	if total == load.VehicleCount {
		target = enums.LoadStatusConfirmed
	}
	if !auction.IsAssignable(load.Status) {
		return nil, auction.InvalidTransition(load.Status, target)
	}

	byCarrier := make(map[uuid.UUID]*models.Assignment, len(existing))
	for i := range existing {
		byCarrier[existing[i].CarrierID] = &existing[i]
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, req := range input.Requests {
			event := models.AssignmentEvent{
				Kind:      enums.AssignmentEventAssign,
				Resource:  req.Price.String(),
				Timestamp: s.now().UTC(),
			}

			row := byCarrier[req.CarrierID]
			if row == nil {
				row = &models.Assignment{
					ID:        uuid.New(),
					LoadID:    input.LoadID,
					CarrierID: req.CarrierID,
					CreatedBy: input.Actor,
					History:   models.AssignmentHistory{},
				}
				byCarrier[req.CarrierID] = row
			}
			row.VehicleCount = req.FleetCount
			row.Price = req.Price
			row.PriceDiffPercent = req.PriceDiffPercent
			row.BidPosition = req.Position
			row.IsAssigned = true
			row.IsActive = true
			row.UpdatedBy = &input.Actor
			row.History = append(row.History, event)

			var saveErr error
			if row.CreatedAt.IsZero() {
				saveErr = repo.Create(ctx, row)
			} else {
				saveErr = repo.Save(ctx, row)
			}
			if saveErr != nil {
				return apperrors.Wrap(apperrors.CodeDependency, saveErr, "writing assignment")
			}

			if emitErr := s.emit(ctx, tx, enums.EventCarrierAssigned, row.ID, input.Actor, map[string]any{
				"loadId":     input.LoadID,
				"carrierId":  req.CarrierID,
				"fleetCount": req.FleetCount,
				"price":      req.Price,
			}); emitErr != nil {
				return emitErr
			}

			if notifyErr := s.dispatch(ctx, tx, notifications.Dispatch{
				Recipients: []uuid.UUID{req.CarrierID},
				Message:    fmt.Sprintf("You won %d vehicle(s) on load %s at %s", req.FleetCount, load.ReferenceNumber, req.Price),
				Category:   enums.NotificationAssignment,
				DeepLink:   fmt.Sprintf("loads/%s", input.LoadID),
			}); notifyErr != nil {
				return notifyErr
			}
		}

		split := activeCarrierCount(byCarrier) > 1
		changed, updateErr := s.loads.WithTx(tx).UpdateGuarded(ctx, load.ID, load.Status, map[string]any{
			"status":     target,
			"is_split":   split,
			"updated_by": input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "updating load status")
		}
		if !changed {
			return auction.InvalidTransition(load.Status, target)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListByLoad(ctx, input.LoadID)
}

// Unassign deactivates one carrier's assignment, zeroes its fleet, clears any
// pending price match, and recomputes the load status from what remains.
func (s *service) Unassign(ctx context.Context, input UnassignInput) (*models.Load, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "unassignment reason is required")
	}

	load, err := s.getLoad(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	if load.Status != enums.LoadStatusPartiallyConfirmed && load.Status != enums.LoadStatusConfirmed {
		return nil, auction.InvalidTransition(load.Status, enums.LoadStatusPending)
	}

	row, err := s.repo.Get(ctx, input.LoadID, input.CarrierID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading assignment")
	}
	if row == nil || !row.IsAssigned {
		return nil, apperrors.New(apperrors.CodeNotFound, "no active assignment for carrier")
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row.VehicleCount = 0
		row.IsAssigned = false
		row.PMRPrice = nil
		row.PMRComment = nil
		row.IsPMRApproved = nil
		row.NegotiatedByArbiter = false
		row.UpdatedBy = &input.Actor
		row.History = append(row.History, models.AssignmentEvent{
			Kind:      enums.AssignmentEventUnassign,
			Reason:    input.Reason,
			Timestamp: s.now().UTC(),
		})
		if saveErr := repo.Save(ctx, row); saveErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, saveErr, "writing assignment")
		}

		remaining, listErr := repo.ListByLoad(ctx, input.LoadID)
		if listErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, listErr, "listing assignments")
		}
		active := 0
		for _, other := range remaining {
			if other.IsAssigned {
				active++
			}
		}

		target := enums.LoadStatusPending
		if active > 0 {
			target = enums.LoadStatusPartiallyConfirmed
		}
		changed, updateErr := s.loads.WithTx(tx).UpdateGuarded(ctx, load.ID, load.Status, map[string]any{
			"status":     target,
			"is_split":   active > 1,
			"updated_by": input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "updating load status")
		}
		if !changed {
			return auction.InvalidTransition(load.Status, target)
		}

		if emitErr := s.emit(ctx, tx, enums.EventCarrierUnassigned, row.ID, input.Actor, map[string]any{
			"loadId":    input.LoadID,
			"carrierId": input.CarrierID,
			"reason":    input.Reason,
		}); emitErr != nil {
			return emitErr
		}
		return s.dispatch(ctx, tx, notifications.Dispatch{
			Recipients: []uuid.UUID{input.CarrierID},
			Message:    fmt.Sprintf("Your assignment on load %s was released: %s", load.ReferenceNumber, input.Reason),
			Category:   enums.NotificationAssignment,
			DeepLink:   fmt.Sprintf("loads/%s", input.LoadID),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.getLoad(ctx, input.LoadID)
}

// ProposePriceMatch records proposed terms against one or more carriers. A
// carrier already holding fleet is rejected outright: granting a price match
// to a committed carrier would double-count capacity.
func (s *service) ProposePriceMatch(ctx context.Context, input ProposeInput) ([]models.Assignment, error) {
	if input.LoadID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id is required")
	}
	if len(input.Proposals) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one proposal is required")
	}
	for _, proposal := range input.Proposals {
		if proposal.CarrierID == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "carrier id is required")
		}
		if !proposal.Rate.IsPositive() {
			return nil, apperrors.New(apperrors.CodeValidation, "proposed rate must be positive")
		}
	}

	load, err := s.getLoad(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	switch load.Status {
	case enums.LoadStatusPending, enums.LoadStatusPartiallyConfirmed, enums.LoadStatusConfirmed:
	default:
		return nil, auction.InvalidTransition(load.Status, load.Status)
	}

	// All proposals are checked before anything is written so an
	// AlreadyAssigned rejection leaves no partial mutation behind.
	existing := make(map[uuid.UUID]*models.Assignment, len(input.Proposals))
	for _, proposal := range input.Proposals {
		row, getErr := s.repo.Get(ctx, input.LoadID, proposal.CarrierID)
		if getErr != nil {
			return nil, apperrors.Wrap(apperrors.CodeDependency, getErr, "reading assignment")
		}
		if row != nil && row.IsAssigned {
			return nil, apperrors.New(apperrors.CodeAlreadyAssigned, "carrier already holds an active assignment").
				WithDetails(map[string]string{"carrierId": proposal.CarrierID.String()})
		}
		existing[proposal.CarrierID] = row
	}

	eventKind := enums.AssignmentEventPriceMatchRequest
	outboxType := enums.EventPriceMatchRequested
	if input.IsArbiter {
		eventKind = enums.AssignmentEventSuperuserNegotiation
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, proposal := range input.Proposals {
			rate := proposal.Rate
			row := existing[proposal.CarrierID]
			if row == nil {
				row = &models.Assignment{
					ID:          uuid.New(),
					LoadID:      input.LoadID,
					CarrierID:   proposal.CarrierID,
					BidPosition: proposal.Position,
					IsAssigned:  false,
					IsActive:    true,
					CreatedBy:   input.Actor,
					History:     models.AssignmentHistory{},
				}
				existing[proposal.CarrierID] = row
			}

			row.PMRPrice = &rate
			row.PMRComment = proposal.Comment
			if input.IsArbiter {
				approved := true
				row.IsPMRApproved = &approved
				row.NegotiatedByArbiter = true
			} else {
				row.IsPMRApproved = nil
				row.NegotiatedByArbiter = false
			}
			row.UpdatedBy = &input.Actor
			row.History = append(row.History, models.AssignmentEvent{
				Kind:      eventKind,
				Resource:  rate.String(),
				Timestamp: s.now().UTC(),
			})

			var saveErr error
			if row.CreatedAt.IsZero() {
				saveErr = repo.Create(ctx, row)
			} else {
				saveErr = repo.Save(ctx, row)
			}
			if saveErr != nil {
				return apperrors.Wrap(apperrors.CodeDependency, saveErr, "writing assignment")
			}

			if emitErr := s.emit(ctx, tx, outboxType, row.ID, input.Actor, map[string]any{
				"loadId":    input.LoadID,
				"carrierId": proposal.CarrierID,
				"rate":      rate,
				"arbiter":   input.IsArbiter,
			}); emitErr != nil {
				return emitErr
			}
			if notifyErr := s.dispatch(ctx, tx, notifications.Dispatch{
				Recipients: []uuid.UUID{proposal.CarrierID},
				Message:    fmt.Sprintf("Price match proposed at %s for load %s", rate, load.ReferenceNumber),
				Category:   enums.NotificationPriceMatch,
				DeepLink:   fmt.Sprintf("loads/%s/price-match", input.LoadID),
			}); notifyErr != nil {
				return notifyErr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListByLoad(ctx, input.LoadID)
}

// RespondPriceMatch resolves or counters an open proposal. A rejection with a
// counter-rate keeps the negotiation open for the other side; a plain
// rejection closes it with the price unchanged.
func (s *service) RespondPriceMatch(ctx context.Context, input RespondInput) (*models.Assignment, error) {
	load, err := s.getLoad(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}

	row, err := s.repo.Get(ctx, input.LoadID, input.CarrierID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading assignment")
	}
	if row == nil || row.PMRPrice == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "no open price match for carrier")
	}

	var (
		eventKind  enums.AssignmentEventKind
		outboxType enums.OutboxEventType
		resource   string
		outcome    string
	)
	switch {
	case input.Approve:
		approved := true
		row.IsPMRApproved = &approved
		row.NegotiatedByArbiter = false
		eventKind = enums.AssignmentEventPriceMatchApproved
		outboxType = enums.EventPriceMatchApproved
		resource = row.PMRPrice.String()
		outcome = "approved"
	case input.CounterRate != nil:
		if !input.CounterRate.IsPositive() {
			return nil, apperrors.New(apperrors.CodeValidation, "counter rate must be positive")
		}
		row.PMRPrice = input.CounterRate
		row.PMRComment = input.Comment
		row.IsPMRApproved = nil
		eventKind = enums.AssignmentEventPriceMatchNegotiated
		outboxType = enums.EventPriceMatchNegotiated
		resource = input.CounterRate.String()
		outcome = "countered"
	default:
		rejected := false
		row.IsPMRApproved = &rejected
		eventKind = enums.AssignmentEventPriceMatchRejected
		outboxType = enums.EventPriceMatchRejected
		resource = row.PMRPrice.String()
		outcome = "rejected"
	}

	row.UpdatedBy = &input.Actor
	row.History = append(row.History, models.AssignmentEvent{
		Kind:      eventKind,
		Resource:  resource,
		Timestamp: s.now().UTC(),
	})

	err = s.transact(ctx, func(tx *gorm.DB) error {
		if saveErr := s.repo.WithTx(tx).Save(ctx, row); saveErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, saveErr, "writing assignment")
		}
		if emitErr := s.emit(ctx, tx, outboxType, row.ID, input.Actor, map[string]any{
			"loadId":    input.LoadID,
			"carrierId": input.CarrierID,
			"approve":   input.Approve,
			"rate":      resource,
		}); emitErr != nil {
			return emitErr
		}
		// The shipper hears the carrier's answer.
		return s.dispatch(ctx, tx, notifications.Dispatch{
			Recipients: []uuid.UUID{load.ShipperID},
			Message:    fmt.Sprintf("Price match on load %s %s at %s", load.ReferenceNumber, outcome, resource),
			Category:   enums.NotificationPriceMatch,
			DeepLink:   fmt.Sprintf("loads/%s/price-match", input.LoadID),
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) getLoad(ctx context.Context, loadID uuid.UUID) (*models.Load, error) {
	load, err := s.loads.Get(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading load")
	}
	if load == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "load not found")
	}
	return load, nil
}

func activeCarrierCount(byCarrier map[uuid.UUID]*models.Assignment) int {
	active := 0
	for _, row := range byCarrier {
		if row.IsAssigned {
			active++
		}
	}
	return active
}

func (s *service) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.client == nil {
		return fn(nil)
	}
	return s.client.WithTx(ctx, fn)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, assignmentID, actor uuid.UUID, data map[string]any) error {
	if s.events == nil || tx == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignmentID,
		Actor:         &outbox.ActorRef{UserID: actor},
		Data:          data,
		Version:       1,
	})
}

func (s *service) dispatch(ctx context.Context, tx *gorm.DB, dispatch notifications.Dispatch) error {
	if s.notify == nil {
		return nil
	}
	return s.notify.Dispatch(ctx, tx, dispatch)
}

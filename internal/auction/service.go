package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/haulbid/haulbid-backend/internal/notifications"
	"github.com/haulbid/haulbid-backend/pkg/db"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/outbox"
)

// BidderSource lists the carriers with at least one accepted rate on a load,
// one row per carrier. Satisfied by the rate ledger.
type BidderSource interface {
	BestPerCarrier(ctx context.Context, loadID uuid.UUID) ([]models.RateSubmission, error)
}

// Clock lets tests pin wall-clock time; production uses time.Now.
type Clock func() time.Time

// Settings carries the auction-wide extension policy.
type Settings struct {
	// ExtensionThreshold is the remaining-window size below which a live
	// auction is extended; ExtensionDuration is how much time is added.
	ExtensionThreshold time.Duration
	ExtensionDuration  time.Duration
	// DefaultMaxAttempts applies when a load does not set its own cap.
	DefaultMaxAttempts int
}

// Service owns the load lifecycle. Transitions from a wrong source state are
// rejected with a typed InvalidTransition error, never silently ignored.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Load, error)
	Publish(ctx context.Context, input PublishInput) (*models.Load, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Load, error)
	// Complete closes out a confirmed load by explicit operator action.
	Complete(ctx context.Context, input CompleteInput) (*models.Load, error)
	// Extend applies the anti-sniping rule: inside the threshold the window
	// moves forward, outside it the call is a no-op success.
	Extend(ctx context.Context, input ExtendInput) (*models.Load, bool, error)
	Get(ctx context.Context, loadID uuid.UUID) (*models.Load, error)
	ListByStatus(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error)
	// InitiateDue and CloseDue are the scheduler entry points. Both are
	// safe no-ops when nothing is due and isolate per-load failures.
	InitiateDue(ctx context.Context, limit int) (int, error)
	CloseDue(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type CreateInput struct {
	ShipperID            uuid.UUID
	ReferenceNumber      string
	OriginCity           string
	DestinationCity      string
	Commodity            *string
	Visibility           enums.LoadVisibility
	BasePrice            decimal.Decimal
	DecrementKind        enums.DecrementKind
	DecrementValue       decimal.Decimal
	ShowLowestToCarriers bool
	MaxAttempts          int
	VehicleCount         int
	AllowSplit           bool
	BidStartTime         time.Time
	BidEndTime           time.Time
	Actor                uuid.UUID
}

type PublishInput struct {
	LoadID uuid.UUID
	Actor  uuid.UUID
}

type CancelInput struct {
	LoadID uuid.UUID
	Reason string
	Actor  uuid.UUID
}

type CompleteInput struct {
	LoadID uuid.UUID
	Reason string
	Actor  uuid.UUID
}

type ExtendInput struct {
	LoadID uuid.UUID
	Actor  uuid.UUID
}

type service struct {
	repo     Repository
	client   *db.Client
	events   *outbox.Service
	notify   notifications.Dispatcher
	bidders  BidderSource
	logg     *logger.Logger
	settings Settings
	now      Clock
}

// NewService wires the state machine. notify and bidders may be nil, which
// disables notification dispatch.
func NewService(repo Repository, client *db.Client, events *outbox.Service, notify notifications.Dispatcher, bidders BidderSource, logg *logger.Logger, settings Settings, clock Clock) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("load repository required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     repo,
		client:   client,
		events:   events,
		notify:   notify,
		bidders:  bidders,
		logg:     logg,
		settings: settings,
		now:      clock,
	}, nil
}

// Create records a new draft load. Drafts are invisible to carriers until
// published.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Load, error) {
	switch {
	case input.ShipperID == uuid.Nil:
		return nil, apperrors.New(apperrors.CodeValidation, "shipper id is required")
	case strings.TrimSpace(input.ReferenceNumber) == "":
		return nil, apperrors.New(apperrors.CodeValidation, "reference number is required")
	case strings.TrimSpace(input.OriginCity) == "" || strings.TrimSpace(input.DestinationCity) == "":
		return nil, apperrors.New(apperrors.CodeValidation, "origin and destination are required")
	case !input.BasePrice.IsPositive():
		return nil, apperrors.New(apperrors.CodeValidation, "base price must be positive")
	case !input.DecrementKind.IsValid():
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown decrement kind %q", input.DecrementKind))
	case input.DecrementValue.IsNegative():
		return nil, apperrors.New(apperrors.CodeValidation, "decrement value cannot be negative")
	case input.VehicleCount <= 0:
		return nil, apperrors.New(apperrors.CodeValidation, "vehicle count must be positive")
	case !input.BidEndTime.After(input.BidStartTime):
		return nil, apperrors.New(apperrors.CodeValidation, "bid end time must be after bid start time")
	case s.now().After(input.BidStartTime):
		return nil, apperrors.New(apperrors.CodeValidation, "bid start time must be in the future")
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = enums.LoadVisibilityOpen
	} else if !visibility.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown visibility %q", visibility))
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.settings.DefaultMaxAttempts
	}

	load := &models.Load{
		ID:                   uuid.New(),
		ShipperID:            input.ShipperID,
		ReferenceNumber:      strings.TrimSpace(input.ReferenceNumber),
		OriginCity:           strings.TrimSpace(input.OriginCity),
		DestinationCity:      strings.TrimSpace(input.DestinationCity),
		Commodity:            input.Commodity,
		Status:               enums.LoadStatusDraft,
		Visibility:           visibility,
		BasePrice:            input.BasePrice,
		DecrementKind:        input.DecrementKind,
		DecrementValue:       input.DecrementValue,
		ShowLowestToCarriers: input.ShowLowestToCarriers,
		MaxAttempts:          maxAttempts,
		VehicleCount:         input.VehicleCount,
		AllowSplit:           input.AllowSplit,
		BidStartTime:         input.BidStartTime.UTC(),
		BidEndTime:           input.BidEndTime.UTC(),
		IsActive:             true,
		CreatedBy:            input.Actor,
	}
	if err := s.repo.Create(ctx, load); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "creating load")
	}
	return load, nil
}

func (s *service) Get(ctx context.Context, loadID uuid.UUID) (*models.Load, error) {
	load, err := s.repo.Get(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "reading load")
	}
	if load == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "load not found")
	}
	return load, nil
}

func (s *service) ListByStatus(ctx context.Context, shipperID *uuid.UUID, status enums.LoadStatus) ([]models.Load, error) {
	if !status.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown load status %q", status))
	}
	loads, err := s.repo.ListByStatus(ctx, shipperID, status)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing loads")
	}
	return loads, nil
}

// Publish moves draft -> not_started. Publishing a load whose bid window has
// already elapsed is rejected rather than silently allowed.
func (s *service) Publish(ctx context.Context, input PublishInput) (*models.Load, error) {
	load, err := s.Get(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	if load.Status != enums.LoadStatusDraft {
		return nil, InvalidTransition(load.Status, enums.LoadStatusNotStarted)
	}
	if s.now().After(load.BidStartTime) {
		return nil, apperrors.New(apperrors.CodeValidation, "bid start time already passed").
			WithDetails(map[string]string{"bidStartTime": load.BidStartTime.Format(time.RFC3339)})
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, enums.LoadStatusDraft, map[string]any{
			"status":     enums.LoadStatusNotStarted,
			"updated_by": input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "publishing load")
		}
		if !changed {
			return InvalidTransition(load.Status, enums.LoadStatusNotStarted)
		}
		if emitErr := s.emit(ctx, tx, enums.EventLoadPublished, load.ID, input.Actor, map[string]any{
			"referenceNumber": load.ReferenceNumber,
			"bidStartTime":    load.BidStartTime,
			"bidEndTime":      load.BidEndTime,
		}); emitErr != nil {
			return emitErr
		}
		return s.dispatch(ctx, tx, notifications.Dispatch{
			Recipients: []uuid.UUID{load.ShipperID},
			Message:    fmt.Sprintf("Load %s is published; bidding opens %s", load.ReferenceNumber, load.BidStartTime.Format(time.RFC3339)),
			Category:   enums.NotificationLoadPublished,
			DeepLink:   fmt.Sprintf("loads/%s", load.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.LoadID)
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Load, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "cancellation reason is required")
	}

	load, err := s.Get(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	if !IsCancellable(load.Status) {
		return nil, InvalidTransition(load.Status, enums.LoadStatusCancelled)
	}

	// Carriers with a rate on the board hear about the withdrawal.
	recipients, err := s.bidderIDs(ctx, load.ID)
	if err != nil {
		return nil, err
	}

	fromStatus := load.Status
	err = s.transact(ctx, func(tx *gorm.DB) error {
		changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, fromStatus, map[string]any{
			"status":              enums.LoadStatusCancelled,
			"cancellation_reason": input.Reason,
			"updated_by":          input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "cancelling load")
		}
		if !changed {
			return InvalidTransition(fromStatus, enums.LoadStatusCancelled)
		}
		if emitErr := s.emit(ctx, tx, enums.EventLoadCancelled, load.ID, input.Actor, map[string]any{
			"reason": input.Reason,
		}); emitErr != nil {
			return emitErr
		}
		if len(recipients) == 0 {
			return nil
		}
		return s.dispatch(ctx, tx, notifications.Dispatch{
			Recipients: recipients,
			Message:    fmt.Sprintf("Load %s has been cancelled: %s", load.ReferenceNumber, input.Reason),
			Category:   enums.NotificationLoadCancelled,
			DeepLink:   fmt.Sprintf("loads/%s", load.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.LoadID)
}

// Complete records the operator's sign-off on a confirmed load: assignments
// were carried out and the load leaves the auction surface for good.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Load, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "completion reason is required")
	}

	load, err := s.Get(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	if load.Status != enums.LoadStatusConfirmed {
		return nil, InvalidTransition(load.Status, enums.LoadStatusCompleted)
	}

	err = s.transact(ctx, func(tx *gorm.DB) error {
		changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, enums.LoadStatusConfirmed, map[string]any{
			"status":            enums.LoadStatusCompleted,
			"completion_reason": input.Reason,
			"updated_by":        input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "completing load")
		}
		if !changed {
			return InvalidTransition(load.Status, enums.LoadStatusCompleted)
		}
		return s.emit(ctx, tx, enums.EventLoadCompleted, load.ID, input.Actor, map[string]any{
			"reason": input.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.LoadID)
}

func (s *service) Extend(ctx context.Context, input ExtendInput) (*models.Load, bool, error) {
	load, err := s.Get(ctx, input.LoadID)
	if err != nil {
		return nil, false, err
	}
	if load.Status != enums.LoadStatusLive {
		return nil, false, InvalidTransition(load.Status, enums.LoadStatusLive)
	}

	// Evaluated against wall-clock time at call time, not cached state.
	remaining := load.BidEndTime.Sub(s.now())
	if remaining > s.settings.ExtensionThreshold {
		return load, false, nil
	}

	newEnd := load.BidEndTime.Add(s.settings.ExtensionDuration)
	addedMinutes := int(s.settings.ExtensionDuration.Minutes())
	err = s.transact(ctx, func(tx *gorm.DB) error {
		changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, enums.LoadStatusLive, map[string]any{
			"bid_end_time":     newEnd,
			"extended_minutes": gorm.Expr("extended_minutes + ?", addedMinutes),
			"updated_by":       input.Actor,
		})
		if updateErr != nil {
			return apperrors.Wrap(apperrors.CodeDependency, updateErr, "extending load")
		}
		if !changed {
			return InvalidTransition(load.Status, enums.LoadStatusLive)
		}
		return s.emit(ctx, tx, enums.EventLoadExtended, load.ID, input.Actor, map[string]any{
			"bidEndTime":   newEnd,
			"addedMinutes": addedMinutes,
		})
	})
	if err != nil {
		return nil, false, err
	}
	updated, err := s.Get(ctx, input.LoadID)
	return updated, true, err
}

func (s *service) InitiateDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDueToStart(ctx, s.now(), limit)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeDependency, err, "listing due loads")
	}

	started := 0
	for _, load := range due {
		err := s.transact(ctx, func(tx *gorm.DB) error {
			changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, enums.LoadStatusNotStarted, map[string]any{
				"status": enums.LoadStatusLive,
			})
			if updateErr != nil {
				return updateErr
			}
			if !changed {
				// another scheduler instance won the race; nothing to do
				return nil
			}
			started++
			return s.emit(ctx, tx, enums.EventLoadLive, load.ID, uuid.Nil, map[string]any{
				"bidEndTime": load.BidEndTime,
			})
		})
		if err != nil {
			s.logError(ctx, load.ID, "initiating load", err)
		}
	}
	return started, nil
}

func (s *service) CloseDue(ctx context.Context, limit int) ([]uuid.UUID, error) {
	due, err := s.repo.ListDueToClose(ctx, s.now(), limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing elapsed loads")
	}

	closed := make([]uuid.UUID, 0, len(due))
	for _, load := range due {
		err := s.transact(ctx, func(tx *gorm.DB) error {
			changed, updateErr := s.repo.WithTx(tx).UpdateGuarded(ctx, load.ID, enums.LoadStatusLive, map[string]any{
				"status": enums.LoadStatusPending,
			})
			if updateErr != nil {
				return updateErr
			}
			if !changed {
				return nil
			}
			closed = append(closed, load.ID)
			return s.emit(ctx, tx, enums.EventLoadClosed, load.ID, uuid.Nil, map[string]any{
				"closedAt": s.now().UTC(),
			})
		})
		if err != nil {
			s.logError(ctx, load.ID, "closing load", err)
		}
	}
	return closed, nil
}

func (s *service) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.client == nil {
		return fn(nil)
	}
	return s.client.WithTx(ctx, fn)
}

func (s *service) dispatch(ctx context.Context, tx *gorm.DB, dispatch notifications.Dispatch) error {
	if s.notify == nil {
		return nil
	}
	return s.notify.Dispatch(ctx, tx, dispatch)
}

// bidderIDs resolves the distinct carriers holding a rate on the load.
func (s *service) bidderIDs(ctx context.Context, loadID uuid.UUID) ([]uuid.UUID, error) {
	if s.bidders == nil {
		return nil, nil
	}
	best, err := s.bidders.BestPerCarrier(ctx, loadID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "listing bidding carriers")
	}
	ids := make([]uuid.UUID, 0, len(best))
	for _, row := range best {
		ids = append(ids, row.CarrierID)
	}
	return ids, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, loadID, actor uuid.UUID, data map[string]any) error {
	if s.events == nil || tx == nil {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateLoad,
		AggregateID:   loadID,
		Data:          data,
		Version:       1,
	}
	if actor != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actor}
	}
	return s.events.Emit(ctx, tx, event)
}

func (s *service) logError(ctx context.Context, loadID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithLoadID(ctx, loadID.String()), msg, err)
}

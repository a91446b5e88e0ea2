package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/leaderboard"
	"github.com/haulbid/haulbid-backend/internal/ledger"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/metrics"
)

// Broadcaster pushes a refreshed snapshot to live viewers of a load.
type Broadcaster interface {
	Publish(loadID uuid.UUID, snapshot leaderboard.Snapshot) int
}

// Service is the rate submission pipeline: validate against the decrement
// policy, append to the ledger, refresh the leaderboard, and apply the
// anti-sniping extension. Submissions for the same (load, carrier) pair are
// serialized so the validate-then-append sequence cannot interleave.
type Service interface {
	SubmitRate(ctx context.Context, input SubmitRateInput) (*Result, error)
}

type SubmitRateInput struct {
	LoadID      uuid.UUID
	CarrierID   uuid.UUID
	Rate        decimal.Decimal
	Comment     *string
	SubmittedBy uuid.UUID
}

// Result is what an accepted submission returns to the caller.
type Result struct {
	Submission *models.RateSubmission
	Snapshot   *leaderboard.Snapshot
	Extended   bool
}

type service struct {
	loads    auction.Service
	ledger   ledger.Service
	board    leaderboard.Service
	pool     CarrierPool
	hub      Broadcaster
	logg     *logger.Logger
	biddingM *metrics.BiddingMetrics
	locks    *keyedMutex
}

// NewService wires the submission pipeline. The pool may be nil, in which
// case private-pool loads reject every submission.
func NewService(loads auction.Service, ledgerSvc ledger.Service, board leaderboard.Service, pool CarrierPool, hub Broadcaster, logg *logger.Logger, biddingMetrics *metrics.BiddingMetrics) (Service, error) {
	if loads == nil {
		return nil, fmt.Errorf("auction service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if board == nil {
		return nil, fmt.Errorf("leaderboard service required")
	}
	return &service{
		loads:    loads,
		ledger:   ledgerSvc,
		board:    board,
		pool:     pool,
		hub:      hub,
		logg:     logg,
		biddingM: biddingMetrics,
		locks:    newKeyedMutex(),
	}, nil
}

func (s *service) SubmitRate(ctx context.Context, input SubmitRateInput) (*Result, error) {
	started := time.Now()
	defer func() { s.biddingM.ObserveSubmission(time.Since(started)) }()

	if input.LoadID == uuid.Nil || input.CarrierID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "load id and carrier id are required")
	}

	unlock := s.locks.Lock(input.LoadID.String() + "|" + input.CarrierID.String())
	defer unlock()

	// Load state is re-read under the lock: a submission that raced a close
	// or cancellation must see the final status.
	load, err := s.loads.Get(ctx, input.LoadID)
	if err != nil {
		return nil, err
	}
	if !auction.IsBiddable(load.Status) {
		s.biddingM.IncRejected("auction_not_live")
		return nil, apperrors.New(apperrors.CodeAuctionNotLive, "load is not accepting rates").
			WithDetails(map[string]string{"currentStatus": load.Status.String()})
	}

	if load.Visibility == enums.LoadVisibilityPrivate {
		allowed := false
		if s.pool != nil {
			allowed, err = s.pool.AllowedToBid(ctx, load, input.CarrierID)
			if err != nil {
				return nil, err
			}
		}
		if !allowed {
			s.biddingM.IncRejected("not_in_pool")
			return nil, apperrors.New(apperrors.CodeForbidden, "carrier is not in the load's bidding pool")
		}
	}

	used, err := s.ledger.AttemptsUsed(ctx, input.LoadID, input.CarrierID)
	if err != nil {
		return nil, err
	}
	if load.MaxAttempts > 0 && used >= load.MaxAttempts {
		s.biddingM.IncRejected("attempt_limit")
		return nil, apperrors.New(apperrors.CodeValidation, "rate submission attempts exhausted").
			WithDetails(map[string]any{"maxAttempts": load.MaxAttempts, "used": used})
	}

	basis := SelectBasis(load)
	reference, err := s.reference(ctx, load, basis, input.CarrierID)
	if err != nil {
		return nil, err
	}

	decision := Validate(load, basis, reference, input.Rate)
	if !decision.Accepted {
		s.biddingM.IncRejected("rate_above_ceiling")
		details := map[string]any{"basis": string(decision.Basis)}
		if decision.HasCeiling {
			details["ceiling"] = decision.Ceiling.String()
		}
		return nil, apperrors.New(apperrors.CodeValidation, decision.Reason).WithDetails(details)
	}

	submission, err := s.ledger.Append(ctx, ledger.AppendRateInput{
		LoadID:      input.LoadID,
		CarrierID:   input.CarrierID,
		Rate:        decision.Rate,
		Comment:     input.Comment,
		SubmittedBy: input.SubmittedBy,
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := s.board.Record(ctx, input.LoadID, submission, submission.AttemptNumber)
	if err != nil {
		// the ledger row is durable; the board rebuilds from it on next read
		s.logError(ctx, input.LoadID, "refreshing leaderboard", err)
		snapshot = nil
	}

	extended := s.maybeExtend(ctx, load, input.SubmittedBy)

	if s.hub != nil && snapshot != nil {
		s.hub.Publish(input.LoadID, *snapshot)
	}
	s.biddingM.IncAccepted(load.Visibility.String())

	return &Result{Submission: submission, Snapshot: snapshot, Extended: extended}, nil
}

// reference resolves the price the submission is validated against; nil when
// no accepted rate exists on the chosen basis yet.
func (s *service) reference(ctx context.Context, load *models.Load, basis ReferenceBasis, carrierID uuid.UUID) (*decimal.Decimal, error) {
	var (
		row *models.RateSubmission
		err error
	)
	if basis == BasisGlobalLowest {
		row, err = s.ledger.LowestForLoad(ctx, load.ID)
	} else {
		row, err = s.ledger.LowestForCarrier(ctx, load.ID, carrierID)
	}
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	rate := row.Rate
	return &rate, nil
}

// maybeExtend applies the anti-sniping rule after an accepted submission.
// Extension failures never fail the submission itself.
func (s *service) maybeExtend(ctx context.Context, load *models.Load, actor uuid.UUID) bool {
	if load.Status != enums.LoadStatusLive {
		return false
	}
	_, extended, err := s.loads.Extend(ctx, auction.ExtendInput{LoadID: load.ID, Actor: actor})
	if err != nil {
		s.logError(ctx, load.ID, "extending bid window", err)
		return false
	}
	if extended {
		s.biddingM.IncExtension()
	}
	return extended
}

func (s *service) logError(ctx context.Context, loadID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithLoadID(ctx, loadID.String()), msg, err)
}

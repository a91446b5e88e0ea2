package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haulbid/haulbid-backend/pkg/logger"
)

// auctionCloser is the slice of the auction service the job needs.
type auctionCloser interface {
	CloseDue(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// boardDiscarder drops a closed load's leaderboard. The ledger stays, so a
// failed discard costs memory, not correctness.
type boardDiscarder interface {
	Discard(ctx context.Context, loadID uuid.UUID) error
}

type AuctionCloseJobParams struct {
	Logger  *logger.Logger
	Loads   auctionCloser
	Board   boardDiscarder
	PerTick int
}

// NewAuctionCloseJob moves live loads whose bid window has elapsed to pending
// and purges their leaderboard entries.
func NewAuctionCloseJob(params AuctionCloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Loads == nil {
		return nil, fmt.Errorf("auction service required")
	}
	perTick := params.PerTick
	if perTick <= 0 {
		perTick = defaultTransitionCap
	}
	return &auctionCloseJob{
		logg:    params.Logger,
		loads:   params.Loads,
		board:   params.Board,
		perTick: perTick,
	}, nil
}

type auctionCloseJob struct {
	logg    *logger.Logger
	loads   auctionCloser
	board   boardDiscarder
	perTick int
}

func (j *auctionCloseJob) Name() string { return "auction-close" }

func (j *auctionCloseJob) Run(ctx context.Context) error {
	closed, err := j.loads.CloseDue(ctx, j.perTick)
	if err != nil {
		return fmt.Errorf("closing elapsed auctions: %w", err)
	}
	for _, loadID := range closed {
		if j.board == nil {
			continue
		}
		if discardErr := j.board.Discard(ctx, loadID); discardErr != nil {
			j.logg.Error(j.logg.WithLoadID(ctx, loadID.String()), "discarding leaderboard", discardErr)
		}
	}
	if len(closed) > 0 {
		j.logg.Info(j.logg.WithField(ctx, "loads_closed", len(closed)), "auctions moved to pending")
	}
	return nil
}

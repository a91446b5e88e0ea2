package cron

import (
	"context"
	"fmt"

	"github.com/haulbid/haulbid-backend/pkg/logger"
)

const defaultTransitionCap = 500

// auctionInitiator is the slice of the auction service the job needs.
type auctionInitiator interface {
	InitiateDue(ctx context.Context, limit int) (int, error)
}

type AuctionInitiateJobParams struct {
	Logger  *logger.Logger
	Loads   auctionInitiator
	PerTick int
}

// NewAuctionInitiateJob flips not_started loads whose bid window has opened
// to live. Per-load failures are isolated inside the service; the job only
// fails when the due-load query itself fails.
func NewAuctionInitiateJob(params AuctionInitiateJobParams) (Job, error) {
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
	return &auctionInitiateJob{
		logg:    params.Logger,
		loads:   params.Loads,
		perTick: perTick,
	}, nil
}

type auctionInitiateJob struct {
	logg    *logger.Logger
	loads   auctionInitiator
	perTick int
}

func (j *auctionInitiateJob) Name() string { return "auction-initiate" }

func (j *auctionInitiateJob) Run(ctx context.Context) error {
	started, err := j.loads.InitiateDue(ctx, j.perTick)
	if err != nil {
		return fmt.Errorf("initiating due auctions: %w", err)
	}
	if started > 0 {
		j.logg.Info(j.logg.WithField(ctx, "loads_started", started), "auctions moved to live")
	}
	return nil
}

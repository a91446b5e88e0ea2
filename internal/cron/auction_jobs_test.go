package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/haulbid/haulbid-backend/pkg/logger"
)

type fakeInitiator struct {
	started int
	limit   int
	err     error
}

func (f *fakeInitiator) InitiateDue(ctx context.Context, limit int) (int, error) {
	f.limit = limit
	return f.started, f.err
}

type fakeCloser struct {
	closed []uuid.UUID
	err    error
}

func (f *fakeCloser) CloseDue(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return f.closed, f.err
}

type fakeDiscarder struct {
	discarded []uuid.UUID
	err       error
}

func (f *fakeDiscarder) Discard(ctx context.Context, loadID uuid.UUID) error {
	f.discarded = append(f.discarded, loadID)
	return f.err
}

func TestAuctionInitiateJobUsesTransitionCap(t *testing.T) {
	initiator := &fakeInitiator{started: 2}
	job, err := NewAuctionInitiateJob(AuctionInitiateJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Loads:  initiator,
	})
	if err != nil {
		t.Fatalf("NewAuctionInitiateJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if initiator.limit != defaultTransitionCap {
		t.Fatalf("expected cap %d, got %d", defaultTransitionCap, initiator.limit)
	}
}

func TestAuctionInitiateJobPropagatesError(t *testing.T) {
	job, _ := NewAuctionInitiateJob(AuctionInitiateJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Loads:  &fakeInitiator{err: errors.New("db down")},
	})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestAuctionCloseJobDiscardsBoards(t *testing.T) {
	closed := []uuid.UUID{uuid.New(), uuid.New()}
	discarder := &fakeDiscarder{}
	job, err := NewAuctionCloseJob(AuctionCloseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Loads:  &fakeCloser{closed: closed},
		Board:  discarder,
	})
	if err != nil {
		t.Fatalf("NewAuctionCloseJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(discarder.discarded) != 2 {
		t.Fatalf("expected 2 discards, got %d", len(discarder.discarded))
	}
}

func TestAuctionCloseJobToleratesDiscardFailure(t *testing.T) {
	job, _ := NewAuctionCloseJob(AuctionCloseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Loads:  &fakeCloser{closed: []uuid.UUID{uuid.New()}},
		Board:  &fakeDiscarder{err: errors.New("redis down")},
	})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("discard failure must not fail the job: %v", err)
	}
}

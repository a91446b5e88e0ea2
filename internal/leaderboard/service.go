package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/ledger"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	apperrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/metrics"
)

// CarrierDirectory resolves display names for leaderboard entries.
type CarrierDirectory interface {
	Names(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// LoadSource resolves the load whose board is being read. Satisfied by the
// auction service.
type LoadSource interface {
	Get(ctx context.Context, loadID uuid.UUID) (*models.Load, error)
}

// Service composes the volatile board with its durable source of truth.
// While an auction is biddable, reads fall back to a ledger rebuild whenever
// Redis has no data for the load; once the auction leaves the biddable
// states the board stays empty so a discarded leaderboard is not silently
// resurrected. Standings is the post-close view: it reads the ledger
// directly without repopulating Redis.
type Service interface {
	Record(ctx context.Context, loadID uuid.UUID, submission *models.RateSubmission, attempts int) (*Snapshot, error)
	Snapshot(ctx context.Context, loadID uuid.UUID) (*Snapshot, error)
	Standings(ctx context.Context, loadID uuid.UUID) (*Snapshot, error)
	Lowest(ctx context.Context, loadID uuid.UUID) (*Entry, error)
	Rebuild(ctx context.Context, loadID uuid.UUID) (*Snapshot, error)
	Discard(ctx context.Context, loadID uuid.UUID) error
}

type service struct {
	board    Board
	ledger   ledger.Service
	carriers CarrierDirectory
	loads    LoadSource
	biddingM *metrics.BiddingMetrics
}

// NewService wires the leaderboard service.
func NewService(board Board, ledgerSvc ledger.Service, carriers CarrierDirectory, loads LoadSource, biddingMetrics *metrics.BiddingMetrics) (Service, error) {
	if board == nil {
		return nil, fmt.Errorf("board required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if loads == nil {
		return nil, fmt.Errorf("load source required")
	}
	return &service{board: board, ledger: ledgerSvc, carriers: carriers, loads: loads, biddingM: biddingMetrics}, nil
}

// Record upserts the carrier's standing after an accepted submission and
// returns the refreshed snapshot.
func (s *service) Record(ctx context.Context, loadID uuid.UUID, submission *models.RateSubmission, attempts int) (*Snapshot, error) {
	if submission == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "submission required")
	}

	entry := Entry{
		CarrierID:      submission.CarrierID,
		Rate:           submission.Rate,
		Attempts:       attempts,
		FirstReachedAt: submission.CreatedAt,
	}
	if submission.Comment != nil {
		entry.Comment = *submission.Comment
	}
	if name, err := s.lookupName(ctx, submission.CarrierID); err == nil {
		entry.CarrierName = name
	}

	if err := s.board.Upsert(ctx, loadID, entry); err != nil {
		return nil, err
	}
	return s.board.Snapshot(ctx, loadID)
}

func (s *service) Snapshot(ctx context.Context, loadID uuid.UUID) (*Snapshot, error) {
	snapshot, err := s.board.Snapshot(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}

	biddable, err := s.isBiddable(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if !biddable {
		return nil, nil
	}
	return s.Rebuild(ctx, loadID)
}

// Standings returns the load's full standings regardless of auction state:
// the live board when present, otherwise entries composed from the ledger.
// Unlike Rebuild it never writes the result back to Redis, so discarded
// boards of closed auctions stay discarded.
func (s *service) Standings(ctx context.Context, loadID uuid.UUID) (*Snapshot, error) {
	snapshot, err := s.board.Snapshot(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		return snapshot, nil
	}

	entries, err := s.entriesFromLedger(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	sortEntries(entries)
	return &Snapshot{LoadID: loadID, Entries: entries, TakenAt: time.Now().UTC()}, nil
}

func (s *service) Lowest(ctx context.Context, loadID uuid.UUID) (*Entry, error) {
	entry, err := s.board.Lowest(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	snapshot, err := s.Snapshot(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || len(snapshot.Entries) == 0 {
		return nil, nil
	}
	lowest := snapshot.Entries[0]
	return &lowest, nil
}

// Rebuild reloads the board from the ledger's per-carrier standings. Safe to
// call on an empty ledger; returns nil when the load has no submissions.
func (s *service) Rebuild(ctx context.Context, loadID uuid.UUID) (*Snapshot, error) {
	entries, err := s.entriesFromLedger(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	for _, entry := range entries {
		if err := s.board.Upsert(ctx, loadID, entry); err != nil {
			return nil, err
		}
	}

	s.biddingM.IncRebuild()
	return s.board.Snapshot(ctx, loadID)
}

func (s *service) Discard(ctx context.Context, loadID uuid.UUID) error {
	return s.board.Discard(ctx, loadID)
}

func (s *service) entriesFromLedger(ctx context.Context, loadID uuid.UUID) ([]Entry, error) {
	best, err := s.ledger.BestPerCarrier(ctx, loadID)
	if err != nil {
		return nil, err
	}
	if len(best) == 0 {
		return nil, nil
	}

	names := map[uuid.UUID]string{}
	if s.carriers != nil {
		ids := make([]uuid.UUID, 0, len(best))
		for _, row := range best {
			ids = append(ids, row.CarrierID)
		}
		if resolved, err := s.carriers.Names(ctx, ids); err == nil {
			names = resolved
		}
	}

	entries := make([]Entry, 0, len(best))
	for _, row := range best {
		attempts, err := s.ledger.AttemptsUsed(ctx, loadID, row.CarrierID)
		if err != nil {
			return nil, err
		}
		entry := Entry{
			CarrierID:      row.CarrierID,
			CarrierName:    names[row.CarrierID],
			Rate:           row.Rate,
			Attempts:       attempts,
			FirstReachedAt: row.CreatedAt,
		}
		if row.Comment != nil {
			entry.Comment = *row.Comment
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *service) isBiddable(ctx context.Context, loadID uuid.UUID) (bool, error) {
	load, err := s.loads.Get(ctx, loadID)
	if err != nil {
		return false, err
	}
	return auction.IsBiddable(load.Status), nil
}

func (s *service) lookupName(ctx context.Context, carrierID uuid.UUID) (string, error) {
	if s.carriers == nil {
		return "", nil
	}
	names, err := s.carriers.Names(ctx, []uuid.UUID{carrierID})
	if err != nil {
		return "", err
	}
	return names[carrierID], nil
}

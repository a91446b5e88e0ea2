package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/api/middleware"
	"github.com/haulbid/haulbid-backend/api/responses"
	"github.com/haulbid/haulbid-backend/api/validators"
	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/internal/bidding"
	"github.com/haulbid/haulbid-backend/internal/broadcast"
	"github.com/haulbid/haulbid-backend/internal/leaderboard"
	"github.com/haulbid/haulbid-backend/internal/ledger"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	pkgerrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
	"github.com/haulbid/haulbid-backend/pkg/pagination"
)

type submitRateRequest struct {
	Rate    decimal.Decimal `json:"rate" validate:"required"`
	Comment *string         `json:"comment,omitempty"`
}

type rateSubmissionResponse struct {
	ID            uuid.UUID       `json:"id"`
	LoadID        uuid.UUID       `json:"loadId"`
	CarrierID     uuid.UUID       `json:"carrierId"`
	Rate          decimal.Decimal `json:"rate"`
	Comment       *string         `json:"comment,omitempty"`
	AttemptNumber int             `json:"attemptNumber"`
	SubmittedAt   time.Time       `json:"submittedAt"`
}

type submitRateResponse struct {
	Submission  rateSubmissionResponse `json:"submission"`
	Leaderboard *leaderboard.Snapshot  `json:"leaderboard,omitempty"`
	Extended    bool                   `json:"extended"`
}

// SubmitRate places a carrier's bid on a live load.
func SubmitRate(svc bidding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bidding service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.ActorID(r)
		var payload submitRateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SubmitRate(r.Context(), bidding.SubmitRateInput{
			LoadID:      loadID,
			CarrierID:   actor,
			Rate:        payload.Rate,
			Comment:     payload.Comment,
			SubmittedBy: actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, submitRateResponse{
			Submission:  newRateSubmissionResponse(result.Submission),
			Leaderboard: result.Snapshot,
			Extended:    result.Extended,
		})
	}
}

// Leaderboard returns the carrier-facing standings. When the load hides the
// lowest rate the snapshot is trimmed to the caller's own entry.
func Leaderboard(loads auction.Service, board leaderboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if loads == nil || board == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "leaderboard service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := loads.Get(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := board.Snapshot(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshot == nil {
			snapshot = &leaderboard.Snapshot{LoadID: loadID, TakenAt: time.Now().UTC()}
		}

		if bidding.SelectBasis(load) == bidding.BasisCarrierLowest {
			snapshot = restrictToCarrier(snapshot, middleware.ActorID(r))
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// ShipperLeaderboard returns the full standings of the shipper's own load.
// Identity hiding applies to the carrier surface only: the shipper always
// sees every carrier, including after the auction closes and the volatile
// board is gone.
func ShipperLeaderboard(board leaderboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if board == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "leaderboard service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := board.Standings(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if snapshot == nil {
			snapshot = &leaderboard.Snapshot{LoadID: loadID, TakenAt: time.Now().UTC()}
		}
		responses.WriteSuccess(w, snapshot)
	}
}

type lowestRateResponse struct {
	Basis  string             `json:"basis"`
	Lowest *leaderboard.Entry `json:"lowest,omitempty"`
}

// LowestRate resolves the reference rate the caller would be validated
// against on their next bid.
func LowestRate(loads auction.Service, board leaderboard.Service, rates ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if loads == nil || board == nil || rates == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "leaderboard service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := loads.Get(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		basis := bidding.SelectBasis(load)
		out := lowestRateResponse{Basis: string(basis)}

		switch basis {
		case bidding.BasisGlobalLowest:
			entry, err := board.Lowest(r.Context(), loadID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out.Lowest = entry
		default:
			row, err := rates.LowestForCarrier(r.Context(), loadID, middleware.ActorID(r))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if row != nil {
				out.Lowest = &leaderboard.Entry{
					CarrierID:      row.CarrierID,
					Rate:           row.Rate,
					FirstReachedAt: row.CreatedAt,
				}
			}
		}
		responses.WriteSuccess(w, out)
	}
}

type rateHistoryResponse struct {
	Submissions []rateSubmissionResponse `json:"submissions"`
	NextCursor  string                   `json:"nextCursor,omitempty"`
}

// RateHistory pages through the caller's own submissions on a load, newest
// first.
func RateHistory(rates ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rates == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}

		rows, next, err := rates.History(r.Context(), loadID, middleware.ActorID(r), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := rateHistoryResponse{
			Submissions: make([]rateSubmissionResponse, 0, len(rows)),
			NextCursor:  next,
		}
		for i := range rows {
			out.Submissions = append(out.Submissions, newRateSubmissionResponse(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

const streamKeepAliveInterval = 25 * time.Second

// LeaderboardStream pushes leaderboard frames over server-sent events until
// the client disconnects. Frames follow the same visibility trimming as the
// snapshot endpoint.
func LeaderboardStream(loads auction.Service, board leaderboard.Service, hub *broadcast.Hub, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if loads == nil || board == nil || hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stream unavailable"))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		loadID, err := uuid.Parse(chi.URLParam(r, "loadId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid load id"))
			return
		}

		load, err := loads.Get(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		restricted := bidding.SelectBasis(load) == bidding.BasisCarrierLowest
		actor := middleware.ActorID(r)

		frames, cancel := hub.Subscribe(loadID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// Current standing first so late subscribers are not blank until the
		// next bid lands.
		if snapshot, err := board.Snapshot(r.Context(), loadID); err == nil && snapshot != nil {
			writeSnapshotEvent(w, flusher, snapshot, restricted, actor)
		}

		keepAlive := time.NewTicker(streamKeepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case frame, open := <-frames:
				if !open {
					return
				}
				writeSnapshotEvent(w, flusher, &frame, restricted, actor)
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeSnapshotEvent(w http.ResponseWriter, flusher http.Flusher, snapshot *leaderboard.Snapshot, restricted bool, actor uuid.UUID) {
	if restricted {
		snapshot = restrictToCarrier(snapshot, actor)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: leaderboard\ndata: %s\n\n", data)
	flusher.Flush()
}

// restrictToCarrier hides other carriers' standings when the shipper chose
// not to expose the lowest rate. The caller's rank is withheld too, since it
// would reveal how many carriers sit below them.
func restrictToCarrier(snapshot *leaderboard.Snapshot, carrierID uuid.UUID) *leaderboard.Snapshot {
	trimmed := &leaderboard.Snapshot{LoadID: snapshot.LoadID, TakenAt: snapshot.TakenAt}
	for _, entry := range snapshot.Entries {
		if entry.CarrierID == carrierID {
			entry.Position = nil
			trimmed.Entries = append(trimmed.Entries, entry)
		}
	}
	return trimmed
}

func newRateSubmissionResponse(row *models.RateSubmission) rateSubmissionResponse {
	return rateSubmissionResponse{
		ID:            row.ID,
		LoadID:        row.LoadID,
		CarrierID:     row.CarrierID,
		Rate:          row.Rate,
		Comment:       row.Comment,
		AttemptNumber: row.AttemptNumber,
		SubmittedAt:   row.CreatedAt,
	}
}

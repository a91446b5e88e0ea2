package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/api/middleware"
	"github.com/haulbid/haulbid-backend/api/responses"
	"github.com/haulbid/haulbid-backend/api/validators"
	"github.com/haulbid/haulbid-backend/internal/assignment"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	pkgerrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
)

type assignCarrierRequest struct {
	CarrierID        uuid.UUID       `json:"carrierId" validate:"required"`
	Position         string          `json:"position,omitempty"`
	Price            decimal.Decimal `json:"price" validate:"required"`
	PriceDiffPercent decimal.Decimal `json:"priceDiffPercent"`
	FleetCount       int             `json:"fleetCount" validate:"required,min=1"`
}

type assignCarriersRequest struct {
	Assignments []assignCarrierRequest `json:"assignments" validate:"required,min=1,dive"`
}

// AssignCarriers allocates the load's vehicle capacity across one or more
// winning carriers.
func AssignCarriers(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignCarriersRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requests := make([]assignment.AssignRequest, 0, len(payload.Assignments))
		for _, req := range payload.Assignments {
			requests = append(requests, assignment.AssignRequest{
				CarrierID:        req.CarrierID,
				Position:         req.Position,
				Price:            req.Price,
				PriceDiffPercent: req.PriceDiffPercent,
				FleetCount:       req.FleetCount,
			})
		}

		rows, err := svc.Assign(r.Context(), assignment.AssignInput{
			LoadID:   loadID,
			Requests: requests,
			Actor:    middleware.ActorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAssignmentResponses(rows))
	}
}

func ListAssignments(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByLoad(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentResponses(rows))
	}
}

type unassignCarrierRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// UnassignCarrier releases a carrier's capacity and recomputes the load's
// status from what remains.
func UnassignCarrier(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		carrierID, err := parseCarrierID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload unassignCarrierRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Unassign(r.Context(), assignment.UnassignInput{
			LoadID:    loadID,
			CarrierID: carrierID,
			Reason:    validators.SanitizeString(payload.Reason, maxReasonLength),
			Actor:     middleware.ActorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoadResponse(load))
	}
}

type priceMatchProposalRequest struct {
	CarrierID uuid.UUID       `json:"carrierId" validate:"required"`
	Position  string          `json:"position,omitempty"`
	Rate      decimal.Decimal `json:"rate" validate:"required"`
	Comment   *string         `json:"comment,omitempty"`
}

type proposePriceMatchRequest struct {
	Proposals []priceMatchProposalRequest `json:"proposals" validate:"required,min=1,dive"`
}

// ProposePriceMatch offers new terms to carriers that did not win outright.
// Arbiter proposals bind immediately; shipper proposals await a response.
func ProposePriceMatch(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload proposePriceMatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proposals := make([]assignment.PriceMatchProposal, 0, len(payload.Proposals))
		for _, p := range payload.Proposals {
			proposals = append(proposals, assignment.PriceMatchProposal{
				CarrierID: p.CarrierID,
				Position:  p.Position,
				Rate:      p.Rate,
				Comment:   p.Comment,
			})
		}

		rows, err := svc.ProposePriceMatch(r.Context(), assignment.ProposeInput{
			LoadID:    loadID,
			Proposals: proposals,
			Actor:     middleware.ActorID(r),
			IsArbiter: middleware.IsArbiter(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAssignmentResponses(rows))
	}
}

type respondPriceMatchRequest struct {
	Approve     bool             `json:"approve"`
	CounterRate *decimal.Decimal `json:"counterRate,omitempty"`
	Comment     *string          `json:"comment,omitempty"`
}

// RespondPriceMatch records the carrier's answer: approve, counter with a new
// rate, or reject.
func RespondPriceMatch(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assignment service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		carrierID, err := parseCarrierID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload respondPriceMatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := svc.RespondPriceMatch(r.Context(), assignment.RespondInput{
			LoadID:      loadID,
			CarrierID:   carrierID,
			Approve:     payload.Approve,
			CounterRate: payload.CounterRate,
			Comment:     payload.Comment,
			Actor:       middleware.ActorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAssignmentResponse(row))
	}
}

type assignmentResponse struct {
	ID                  uuid.UUID                `json:"id"`
	LoadID              uuid.UUID                `json:"loadId"`
	CarrierID           uuid.UUID                `json:"carrierId"`
	VehicleCount        int                      `json:"vehicleCount"`
	Price               decimal.Decimal          `json:"price"`
	PriceDiffPercent    decimal.Decimal          `json:"priceDiffPercent"`
	BidPosition         string                   `json:"bidPosition,omitempty"`
	PMRPrice            *decimal.Decimal         `json:"pmrPrice,omitempty"`
	PMRComment          *string                  `json:"pmrComment,omitempty"`
	IsPMRApproved       *bool                    `json:"isPmrApproved,omitempty"`
	NegotiatedByArbiter bool                     `json:"negotiatedByArbiter"`
	IsAssigned          bool                     `json:"isAssigned"`
	History             models.AssignmentHistory `json:"history,omitempty"`
	CreatedAt           time.Time                `json:"createdAt"`
	UpdatedAt           time.Time                `json:"updatedAt"`
}

func newAssignmentResponse(row *models.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:                  row.ID,
		LoadID:              row.LoadID,
		CarrierID:           row.CarrierID,
		VehicleCount:        row.VehicleCount,
		Price:               row.Price,
		PriceDiffPercent:    row.PriceDiffPercent,
		BidPosition:         row.BidPosition,
		PMRPrice:            row.PMRPrice,
		PMRComment:          row.PMRComment,
		IsPMRApproved:       row.IsPMRApproved,
		NegotiatedByArbiter: row.NegotiatedByArbiter,
		IsAssigned:          row.IsAssigned,
		History:             row.History,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func newAssignmentResponses(rows []models.Assignment) []assignmentResponse {
	out := make([]assignmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newAssignmentResponse(&rows[i]))
	}
	return out
}

func parseCarrierID(r *http.Request) (uuid.UUID, error) {
	carrierID, err := uuid.Parse(chi.URLParam(r, "carrierId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid carrier id")
	}
	return carrierID, nil
}

package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/haulbid/haulbid-backend/api/middleware"
	"github.com/haulbid/haulbid-backend/api/responses"
	"github.com/haulbid/haulbid-backend/api/validators"
	"github.com/haulbid/haulbid-backend/internal/auction"
	"github.com/haulbid/haulbid-backend/pkg/db/models"
	"github.com/haulbid/haulbid-backend/pkg/enums"
	pkgerrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
)

// CreateLoad handles draft creation for shipper consoles.
func CreateLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		actor := middleware.ActorID(r)
		if actor == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload createLoadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Create(r.Context(), payload.toCreateInput(actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newLoadResponse(load))
	}
}

// ListLoads returns the caller's loads in the requested lifecycle status.
func ListLoads(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		actor := middleware.ActorID(r)
		status := enums.LoadStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		if status == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status query parameter is required"))
			return
		}

		loads, err := svc.ListByStatus(r.Context(), &actor, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]loadResponse, 0, len(loads))
		for i := range loads {
			out = append(out, newLoadResponse(&loads[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Get(r.Context(), loadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoadResponse(load))
	}
}

// PublishLoad moves a draft onto the marketplace.
func PublishLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Publish(r.Context(), auction.PublishInput{LoadID: loadID, Actor: middleware.ActorID(r)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoadResponse(load))
	}
}

// maxReasonLength caps free-text reasons before they reach storage and the
// event payloads built from them.
const maxReasonLength = 500

type cancelLoadRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func CancelLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelLoadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Cancel(r.Context(), auction.CancelInput{
			LoadID: loadID,
			Reason: validators.SanitizeString(payload.Reason, maxReasonLength),
			Actor:  middleware.ActorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoadResponse(load))
	}
}

type completeLoadRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CompleteLoad records the operator's sign-off once a confirmed load's
// assignments have been carried out.
func CompleteLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload completeLoadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, err := svc.Complete(r.Context(), auction.CompleteInput{
			LoadID: loadID,
			Reason: validators.SanitizeString(payload.Reason, maxReasonLength),
			Actor:  middleware.ActorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLoadResponse(load))
	}
}

// ExtendLoad applies the anti-sniping extension on demand. Outside the
// extension threshold the call succeeds without moving the window.
func ExtendLoad(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		loadID, err := parseLoadID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		load, extended, err := svc.Extend(r.Context(), auction.ExtendInput{LoadID: loadID, Actor: middleware.ActorID(r)})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, extendLoadResponse{
			Load:     newLoadResponse(load),
			Extended: extended,
		})
	}
}

type createLoadRequest struct {
	ReferenceNumber      string          `json:"referenceNumber" validate:"required"`
	OriginCity           string          `json:"originCity" validate:"required"`
	DestinationCity      string          `json:"destinationCity" validate:"required"`
	Commodity            *string         `json:"commodity,omitempty"`
	Visibility           string          `json:"visibility,omitempty"`
	BasePrice            decimal.Decimal `json:"basePrice" validate:"required"`
	DecrementKind        string          `json:"decrementKind" validate:"required"`
	DecrementValue       decimal.Decimal `json:"decrementValue"`
	ShowLowestToCarriers bool            `json:"showLowestToCarriers"`
	MaxAttempts          int             `json:"maxAttempts" validate:"omitempty,min=1"`
	VehicleCount         int             `json:"vehicleCount" validate:"required,min=1"`
	AllowSplit           bool            `json:"allowSplit"`
	BidStartTime         time.Time       `json:"bidStartTime" validate:"required"`
	BidEndTime           time.Time       `json:"bidEndTime" validate:"required"`
}

func (p createLoadRequest) toCreateInput(actor uuid.UUID) auction.CreateInput {
	return auction.CreateInput{
		ShipperID:            actor,
		ReferenceNumber:      p.ReferenceNumber,
		OriginCity:           p.OriginCity,
		DestinationCity:      p.DestinationCity,
		Commodity:            p.Commodity,
		Visibility:           enums.LoadVisibility(p.Visibility),
		BasePrice:            p.BasePrice,
		DecrementKind:        enums.DecrementKind(p.DecrementKind),
		DecrementValue:       p.DecrementValue,
		ShowLowestToCarriers: p.ShowLowestToCarriers,
		MaxAttempts:          p.MaxAttempts,
		VehicleCount:         p.VehicleCount,
		AllowSplit:           p.AllowSplit,
		BidStartTime:         p.BidStartTime,
		BidEndTime:           p.BidEndTime,
		Actor:                actor,
	}
}

type loadResponse struct {
	ID                   uuid.UUID       `json:"id"`
	ShipperID            uuid.UUID       `json:"shipperId"`
	ReferenceNumber      string          `json:"referenceNumber"`
	OriginCity           string          `json:"originCity"`
	DestinationCity      string          `json:"destinationCity"`
	Commodity            *string         `json:"commodity,omitempty"`
	Status               string          `json:"status"`
	Visibility           string          `json:"visibility"`
	BasePrice            decimal.Decimal `json:"basePrice"`
	DecrementKind        string          `json:"decrementKind"`
	DecrementValue       decimal.Decimal `json:"decrementValue"`
	ShowLowestToCarriers bool            `json:"showLowestToCarriers"`
	MaxAttempts          int             `json:"maxAttempts"`
	VehicleCount         int             `json:"vehicleCount"`
	AllowSplit           bool            `json:"allowSplit"`
	IsSplit              bool            `json:"isSplit"`
	BidStartTime         time.Time       `json:"bidStartTime"`
	BidEndTime           time.Time       `json:"bidEndTime"`
	ExtendedMinutes      int             `json:"extendedMinutes"`
	CancellationReason   *string         `json:"cancellationReason,omitempty"`
	CompletionReason     *string         `json:"completionReason,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type extendLoadResponse struct {
	Load     loadResponse `json:"load"`
	Extended bool         `json:"extended"`
}

func newLoadResponse(load *models.Load) loadResponse {
	return loadResponse{
		ID:                   load.ID,
		ShipperID:            load.ShipperID,
		ReferenceNumber:      load.ReferenceNumber,
		OriginCity:           load.OriginCity,
		DestinationCity:      load.DestinationCity,
		Commodity:            load.Commodity,
		Status:               string(load.Status),
		Visibility:           string(load.Visibility),
		BasePrice:            load.BasePrice,
		DecrementKind:        string(load.DecrementKind),
		DecrementValue:       load.DecrementValue,
		ShowLowestToCarriers: load.ShowLowestToCarriers,
		MaxAttempts:          load.MaxAttempts,
		VehicleCount:         load.VehicleCount,
		AllowSplit:           load.AllowSplit,
		IsSplit:              load.IsSplit,
		BidStartTime:         load.BidStartTime,
		BidEndTime:           load.BidEndTime,
		ExtendedMinutes:      load.ExtendedMinutes,
		CancellationReason:   load.CancellationReason,
		CompletionReason:     load.CompletionReason,
		CreatedAt:            load.CreatedAt,
		UpdatedAt:            load.UpdatedAt,
	}
}

func parseLoadID(r *http.Request) (uuid.UUID, error) {
	loadID, err := uuid.Parse(chi.URLParam(r, "loadId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid load id")
	}
	return loadID, nil
}

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/haulbid/haulbid-backend/api/responses"
	pkgerrors "github.com/haulbid/haulbid-backend/pkg/errors"
	"github.com/haulbid/haulbid-backend/pkg/logger"
)

const (
	actorIDHeader   = "X-User-Id"
	actorRoleHeader = "X-User-Role"
)

// RoleArbiter may issue binding price-match terms.
const RoleArbiter = "arbiter"

// Actor extracts the authenticated caller's identity from the headers the
// upstream gateway sets. Authentication itself happens outside this service;
// requests arriving without a valid user id are rejected here.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(actorIDHeader)
			actorID, err := uuid.Parse(raw)
			if err != nil || actorID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeUnauthorized, "missing or invalid user identity"))
				return
			}

			ctx := WithUserID(r.Context(), actorID.String())
			if role := r.Header.Get(actorRoleHeader); role != "" {
				ctx = WithRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID returns the caller's id; uuid.Nil when unauthenticated.
func ActorID(r *http.Request) uuid.UUID {
	id, err := uuid.Parse(UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// IsArbiter reports whether the caller holds the arbitrating role.
func IsArbiter(r *http.Request) bool {
	return RoleFromContext(r.Context()) == RoleArbiter
}

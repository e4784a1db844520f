package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
)

// ErrActorNotFound is returned by an ActorResolver for ids it does not know.
var ErrActorNotFound = errors.New("actor not found")

type ActorResolver func(ctx context.Context, userID uuid.UUID) (*composables.Actor, error)

// ProvideActor resolves the forwarded user id header into an Actor. Requests
// without the header pass through anonymously; handlers decide whether that is allowed.
func ProvideActor(header string, resolve ActorResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(header))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			requestID := composables.UseRequestID(r.Context())
			userID, err := uuid.Parse(raw)
			if err != nil {
				_ = httpapi.WriteRequestError(w, http.StatusUnauthorized, requestID, "UNAUTHENTICATED", "invalid user id header")
				return
			}
			actor, err := resolve(r.Context(), userID)
			if err != nil {
				if errors.Is(err, ErrActorNotFound) {
					_ = httpapi.WriteRequestError(w, http.StatusUnauthorized, requestID, "UNAUTHENTICATED", "unknown user")
					return
				}
				composables.UseLogger(r.Context()).WithError(err).Error("failed to resolve actor")
				_ = httpapi.WriteRequestError(w, http.StatusInternalServerError, requestID, "INTERNAL_SERVER_ERROR", "failed to resolve user")
				return
			}
			ctx := composables.WithActor(r.Context(), actor)
			ctx = composables.WithOrganizationID(ctx, actor.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActor rejects requests that carry no resolved actor.
func RequireActor() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := composables.UseActor(r.Context()); err != nil {
				_ = httpapi.WriteRequestError(
					w,
					http.StatusUnauthorized,
					composables.UseRequestID(r.Context()),
					"UNAUTHENTICATED",
					"user id header is required",
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

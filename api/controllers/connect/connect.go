package connect

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/controllers/seller"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	internalconnect "github.com/angelmondragon/bazaar-backend/internal/connect"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Authorize starts the Stripe Connect onboarding flow for the seller's store.
func Authorize(svc internalconnect.Service, stores seller.StoreResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || stores == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		userID, role, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
		if storeID == "" {
			storeID = middleware.StoreIDFromContext(r.Context())
		}
		store, err := stores.ResolveOwned(r.Context(), userID, role, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Authorize(r.Context(), store.ID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"url":        result.URL,
			"expires_at": result.ExpiresAt,
		})
	}
}

// Callback completes onboarding. Stripe redirects here with state and code, or
// with error and error_description when the seller declined.
func Callback(svc internalconnect.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}
		query := r.URL.Query()
		if oauthErr := strings.TrimSpace(query.Get("error")); oauthErr != "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "connect authorization was not granted").
				WithDetails(map[string]any{"error": oauthErr, "description": query.Get("error_description")}))
			return
		}

		result, err := svc.Callback(r.Context(), query.Get("state"), query.Get("code"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"store_id":          result.StoreID,
			"stripe_account_id": result.StripeAccountID,
		})
	}
}

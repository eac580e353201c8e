// Package seller serves the store-owner surface: listings and the ledger.
package seller

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// StoreResolver finds the store a seller request acts on and checks ownership.
type StoreResolver interface {
	ResolveOwned(ctx context.Context, userID uuid.UUID, role enums.UserRole, storeID string) (*models.Store, error)
}

// ownedStore reads store_id from the query, falling back to the token's active store.
func ownedStore(r *http.Request, stores StoreResolver) (*models.Store, uuid.UUID, error) {
	userID, role, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
	if storeID == "" {
		storeID = middleware.StoreIDFromContext(r.Context())
	}
	store, err := stores.ResolveOwned(r.Context(), userID, role, storeID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return store, userID, nil
}

package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type storeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Store, error)
}

// Service resolves which store a seller request acts on.
type Service interface {
	// ResolveOwned returns the store the user owns. An explicit storeID wins;
	// otherwise the token's active store is used, then the user's only store.
	ResolveOwned(ctx context.Context, userID uuid.UUID, role enums.UserRole, storeID string) (*models.Store, error)
}

type service struct {
	repo storeRepository
}

// NewService builds a store service with the provided repository.
func NewService(repo storeRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ResolveOwned(ctx context.Context, userID uuid.UUID, role enums.UserRole, storeID string) (*models.Store, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return s.onlyStore(ctx, userID)
	}

	id, err := uuid.Parse(storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id")
	}
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if store.OwnerID != userID && role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store belongs to another seller")
	}
	return store, nil
}

func (s *service) onlyStore(ctx context.Context, userID uuid.UUID) (*models.Store, error) {
	owned, err := s.repo.FindByOwner(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}
	switch len(owned) {
	case 0:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user owns no store")
	case 1:
		return &owned[0], nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required when owning multiple stores")
	}
}

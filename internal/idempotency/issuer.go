// Package idempotency issues keys for calls with external side effects. A key is
// committed before the call is attempted; a crashed attempt leaves an orphaned
// audit row and the retry gets a fresh key.
package idempotency

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const maxIssueAttempts = 3

type keyStore interface {
	Create(ctx context.Context, record *models.IdempotencyKey) error
}

// Issuer generates and records idempotency keys.
type Issuer struct {
	store  keyStore
	newKey func() string
}

func NewIssuer(store keyStore) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("idempotency key store required")
	}
	return &Issuer{store: store, newKey: uuid.NewString}, nil
}

// Issue persists a fresh key for (op, resourceID) and returns it.
func (i *Issuer) Issue(ctx context.Context, op enums.IdempotencyOperation, resourceID uuid.UUID) (string, error) {
	if !op.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown idempotency operation")
	}
	if resourceID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "resource id required")
	}

	var lastErr error
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		record := &models.IdempotencyKey{
			Key:           i.newKey(),
			OperationType: op,
			ResourceID:    resourceID,
		}
		err := i.store.Create(ctx, record)
		if err == nil {
			return record.Key, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist idempotency key")
		}
		lastErr = err
	}
	return "", pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "could not issue a unique idempotency key")
}

package idempotency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func TestIssuePersistsBeforeReturning(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	issuer, err := NewIssuer(repo)
	require.NoError(t, err)

	orderID := uuid.New()
	first, err := issuer.Issue(context.Background(), enums.IdempotencyOperationCheckoutSession, orderID)
	require.NoError(t, err)
	second, err := issuer.Issue(context.Background(), enums.IdempotencyOperationCheckoutSession, orderID)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "each attempt gets its own key")

	rows, err := repo.ListByResource(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.ElementsMatch(t, []string{first, second}, []string{rows[0].Key, rows[1].Key})
	assert.Equal(t, enums.IdempotencyOperationCheckoutSession, rows[0].OperationType)
}

func TestIssueRetriesOnKeyCollision(t *testing.T) {
	client := dbtest.Open(t)
	issuer, err := NewIssuer(NewRepository(client.DB()))
	require.NoError(t, err)

	keys := []string{"dup", "dup", "fresh"}
	issuer.newKey = func() string {
		k := keys[0]
		keys = keys[1:]
		return k
	}

	first, err := issuer.Issue(context.Background(), enums.IdempotencyOperationCheckoutSession, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "dup", first)

	second, err := issuer.Issue(context.Background(), enums.IdempotencyOperationCheckoutSession, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func TestIssueRejectsInvalidInput(t *testing.T) {
	client := dbtest.Open(t)
	issuer, err := NewIssuer(NewRepository(client.DB()))
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), "unknown", uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = issuer.Issue(context.Background(), enums.IdempotencyOperationCheckoutSession, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

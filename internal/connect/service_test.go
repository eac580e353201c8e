package connect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type fakeGateway struct {
	states    []string
	codes     []string
	accountID string
	err       error
}

func (f *fakeGateway) ConnectAuthorizeURL(state string) (string, error) {
	f.states = append(f.states, state)
	return "https://connect.stripe.com/oauth/authorize?state=" + state, nil
}

func (f *fakeGateway) ExchangeConnectCode(_ context.Context, code string) (string, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return "", f.err
	}
	return f.accountID, nil
}

type connectFixture struct {
	client  *db.Client
	svc     Service
	gateway *fakeGateway
	now     time.Time
	seller  models.User
	store   models.Store
}

func newConnectFixture(t *testing.T) *connectFixture {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	f := &connectFixture{
		client:  client,
		gateway: &fakeGateway{accountID: "acct_123"},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.seller = models.User{Email: "seller@example.com", FirstName: "S", LastName: "Eller", Role: enums.UserRoleSeller}
	require.NoError(t, gdb.Create(&f.seller).Error)
	f.store = models.Store{OwnerID: f.seller.ID, Name: "Lamp Works"}
	require.NoError(t, gdb.Create(&f.store).Error)

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(gdb),
		Gateway:  f.gateway,
		TxRunner: client,
		Outbox:   outbox.NewService(outbox.NewRepository(gdb), nil),
		Clock:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *connectFixture) stripeAccount(t *testing.T) *string {
	t.Helper()
	var user models.User
	require.NoError(t, f.client.DB().First(&user, "id = ?", f.seller.ID).Error)
	return user.StripeAccountID
}

func TestAuthorizeStoresStateAndReturnsURL(t *testing.T) {
	f := newConnectFixture(t)

	res, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)
	require.Len(t, f.gateway.states, 1)
	assert.Equal(t, f.gateway.states[0], res.State)
	assert.Contains(t, res.URL, "state="+res.State)
	assert.Equal(t, f.now.Add(30*time.Minute), res.ExpiresAt)

	var stored models.ConnectAuthorizationState
	require.NoError(t, f.client.DB().First(&stored, "state = ?", res.State).Error)
	assert.Equal(t, f.store.ID, stored.StoreID)
	assert.Equal(t, f.seller.ID, stored.UserID)
	assert.Nil(t, stored.ConsumedAt)
}

func TestAuthorizeRejectsNonOwner(t *testing.T) {
	f := newConnectFixture(t)

	_, err := f.svc.Authorize(t.Context(), f.store.ID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Authorize(t.Context(), uuid.New(), f.seller.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, f.gateway.states)
}

func TestCallbackLinksAccountOnce(t *testing.T) {
	f := newConnectFixture(t)
	auth, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)

	res, err := f.svc.Callback(t.Context(), auth.State, "ac_code")
	require.NoError(t, err)
	assert.Equal(t, "acct_123", res.StripeAccountID)
	assert.Equal(t, f.store.ID, res.StoreID)
	require.NotNil(t, f.stripeAccount(t))
	assert.Equal(t, "acct_123", *f.stripeAccount(t))

	var events []models.OutboxEvent
	require.NoError(t, f.client.DB().Where("event_type = ?", enums.EventSellerConnected).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, f.store.ID, events[0].AggregateID)

	_, err = f.svc.Callback(t.Context(), auth.State, "ac_code")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Len(t, f.gateway.codes, 1)
}

func TestCallbackRejectsExpiredState(t *testing.T) {
	f := newConnectFixture(t)
	auth, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)

	f.now = f.now.Add(31 * time.Minute)
	_, err = f.svc.Callback(t.Context(), auth.State, "ac_code")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.gateway.codes)
	assert.Nil(t, f.stripeAccount(t))
}

func TestCallbackRejectsUnknownOrBlankInput(t *testing.T) {
	f := newConnectFixture(t)

	cases := []struct {
		name  string
		state string
		code  string
	}{
		{name: "unknown state", state: "nope", code: "ac_code"},
		{name: "blank state", state: " ", code: "ac_code"},
		{name: "blank code", state: "nope", code: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Callback(t.Context(), tc.state, tc.code)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestCallbackGatewayFailureLeavesAccountUnset(t *testing.T) {
	f := newConnectFixture(t)
	auth, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)

	f.gateway.err = errors.New("invalid_grant")
	_, err = f.svc.Callback(t.Context(), auth.State, "ac_code")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.Nil(t, f.stripeAccount(t))

	f.gateway.err = nil
	_, err = f.svc.Callback(t.Context(), auth.State, "ac_code")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestPurgeExpiredRemovesStaleAndUsedStates(t *testing.T) {
	f := newConnectFixture(t)
	used, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)
	_, err = f.svc.Callback(t.Context(), used.State, "ac_code")
	require.NoError(t, err)

	stale, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	fresh, err := f.svc.Authorize(t.Context(), f.store.ID, f.seller.ID)
	require.NoError(t, err)

	deleted, err := f.svc.PurgeExpired(t.Context(), stale.ExpiresAt.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.ConnectAuthorizationState
	require.NoError(t, f.client.DB().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.State, remaining[0].State)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

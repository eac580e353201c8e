package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	internalconnect "github.com/angelmondragon/bazaar-backend/internal/connect"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type stubConnect struct {
	authorizedStore uuid.UUID
	state, code     string
	callbackErr     error
}

func (s *stubConnect) Authorize(_ context.Context, storeID, _ uuid.UUID) (*internalconnect.AuthorizeResult, error) {
	s.authorizedStore = storeID
	return &internalconnect.AuthorizeResult{URL: "https://connect.stripe.com/oauth/authorize?state=abc", State: "abc", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func (s *stubConnect) Callback(_ context.Context, state, code string) (*internalconnect.CallbackResult, error) {
	s.state, s.code = state, code
	if s.callbackErr != nil {
		return nil, s.callbackErr
	}
	return &internalconnect.CallbackResult{StoreID: uuid.New(), StripeAccountID: "acct_1"}, nil
}

func (s *stubConnect) PurgeExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type stubStores struct {
	store *models.Store
	err   error
	asked string
}

func (s *stubStores) ResolveOwned(_ context.Context, _ uuid.UUID, _ enums.UserRole, storeID string) (*models.Store, error) {
	s.asked = storeID
	return s.store, s.err
}

func TestAuthorizeUsesActiveStore(t *testing.T) {
	store := &models.Store{ID: uuid.New()}
	stores := &stubStores{store: store}
	svc := &stubConnect{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/seller/connect/authorize", nil)
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithStoreID(ctx, store.ID.String())
	rec := httptest.NewRecorder()
	Authorize(svc, stores, nil).ServeHTTP(rec, req.WithContext(ctx))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, store.ID.String(), stores.asked)
	assert.Equal(t, store.ID, svc.authorizedStore)
	assert.Contains(t, rec.Body.String(), "connect.stripe.com")
}

func TestAuthorizeRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	Authorize(&stubConnect{}, &stubStores{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback(t *testing.T) {
	svc := &stubConnect{}
	rec := httptest.NewRecorder()
	Callback(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connect/callback?state=abc&code=ac_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.state)
	assert.Equal(t, "ac_1", svc.code)
	assert.Contains(t, rec.Body.String(), "acct_1")
}

func TestCallbackDeclinedOrReplayed(t *testing.T) {
	svc := &stubConnect{}
	rec := httptest.NewRecorder()
	Callback(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?error=access_denied&error_description=declined", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.state)

	svc.callbackErr = pkgerrors.New(pkgerrors.CodeConflict, "authorization state already used")
	rec = httptest.NewRecorder()
	Callback(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=abc&code=ac_1", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

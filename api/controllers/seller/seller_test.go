package seller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/stores"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

type sellerFixture struct {
	products product.Service
	ledger   ledger.Service
	stores   stores.Service
	seller   models.User
	store    models.Store
}

func newSellerFixture(t *testing.T) *sellerFixture {
	t.Helper()
	client := dbtest.Open(t)
	gdb := client.DB()

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(gdb), TxRunner: client, ListingFeeCents: 25})
	require.NoError(t, err)
	productSvc, err := product.NewService(product.ServiceParams{
		Repo:     product.NewRepository(gdb),
		TxRunner: client,
		Ledger:   ledgerSvc,
		Outbox:   outbox.NewService(outbox.NewRepository(gdb), nil),
	})
	require.NoError(t, err)
	storeSvc, err := stores.NewService(stores.NewRepository(gdb))
	require.NoError(t, err)

	f := &sellerFixture{products: productSvc, ledger: ledgerSvc, stores: storeSvc}
	f.seller = models.User{Email: "seller@example.com", FirstName: "S", LastName: "Eller", Role: enums.UserRoleSeller}
	require.NoError(t, gdb.Create(&f.seller).Error)
	f.store = models.Store{OwnerID: f.seller.ID, Name: "Lamp Works"}
	require.NoError(t, gdb.Create(&f.store).Error)
	return f
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(enums.UserRoleSeller))
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

const listingBody = `{"title":"Desk Lamp","price":"24.50","stock_quantity":3,"requires_shipping":true,"shipping_options":[{"name":"Standard","cost":"4.50"}]}`

func TestCreateListingThenSummary(t *testing.T) {
	f := newSellerFixture(t)

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/seller/products", strings.NewReader(listingBody)), f.seller.ID)
	CreateListing(f.products, f.stores, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var listing product.ListingDTO
	decodeData(t, rec, &listing)
	assert.Equal(t, f.store.ID, listing.Product.StoreID)
	assert.EqualValues(t, 25, listing.ListingFeeCents)
	assert.EqualValues(t, 1, listing.OutstandingFeeCount)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger/summary", nil), f.seller.ID)
	LedgerSummary(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary ledger.SummaryDTO
	decodeData(t, rec, &summary)
	assert.Equal(t, "-0.25", summary.ListingFeesAccrued)
	assert.Equal(t, "0.00", summary.GrossSales)
	assert.EqualValues(t, 1, summary.OutstandingListingFees)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger", nil), f.seller.ID)
	LedgerEntries(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries struct {
		Entries []ledger.EntryDTO `json:"entries"`
	}
	decodeData(t, rec, &entries)
	require.Len(t, entries.Entries, 1)
	assert.Equal(t, enums.LedgerEntryListingFeeAccrued, entries.Entries[0].EntryType)
	assert.Equal(t, "-0.25", entries.Entries[0].Amount)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger?type=platform_fee", nil), f.seller.ID)
	LedgerEntries(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &entries)
	assert.Empty(t, entries.Entries)
}

func TestSellerRoutesRequireOwnership(t *testing.T) {
	f := newSellerFixture(t)
	stranger := uuid.New()

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/seller/products?store_id="+f.store.ID.String(), strings.NewReader(listingBody)), stranger)
	CreateListing(f.products, f.stores, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger?store_id="+f.store.ID.String(), nil), stranger)
	LedgerEntries(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	LedgerSummary(f.ledger, f.stores, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLedgerRejectsBadPeriod(t *testing.T) {
	f := newSellerFixture(t)

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger?from=yesterday", nil), f.seller.ID)
	LedgerEntries(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger?type=payout", nil), f.seller.ID)
	LedgerEntries(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/ledger/summary?from=2026-03-02&to=2026-03-01", nil), f.seller.ID)
	LedgerSummary(f.ledger, f.stores, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProducts(t *testing.T) {
	f := newSellerFixture(t)
	for range 2 {
		rec := httptest.NewRecorder()
		req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(listingBody)), f.seller.ID)
		CreateListing(f.products, f.stores, nil).ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/seller/products?limit=1", nil), f.seller.ID)
	ListProducts(f.products, f.stores, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var page product.ProductListResult
	decodeData(t, rec, &page)
	assert.Len(t, page.Products, 1)
	assert.NotEmpty(t, page.NextCursor)
}
